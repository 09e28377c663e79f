// Package auth gates mutating requests behind a bearer credential.
//
// The configured secret is either a plain shared token, compared in constant
// time, or a password hash (argon2 PHC string or bcrypt) that the presented
// token is verified against.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptySecret is returned by NewVerifier when no secret is configured.
var ErrEmptySecret = errors.New("auth secret must not be empty")

// Verifier decides whether a presented bearer token is acceptable.
type Verifier interface {
	Verify(token string) bool
}

// NewVerifier picks the verification strategy for secret once, at startup.
func NewVerifier(secret string, logger *zap.Logger) (Verifier, error) {
	switch {
	case secret == "":
		return nil, ErrEmptySecret
	case strings.HasPrefix(secret, "$argon2"):
		h, err := parsePHC(secret)
		if err != nil {
			return nil, err
		}
		logger.Info("auth: argon2 token hash configured", zap.String("variant", h.variant))
		return &Argon2Verifier{hash: h}, nil
	case isBcrypt(secret):
		if _, err := bcrypt.Cost([]byte(secret)); err != nil {
			return nil, err
		}
		logger.Info("auth: bcrypt token hash configured")
		return &BcryptVerifier{hash: []byte(secret)}, nil
	default:
		logger.Warn("auth: plain token configured; consider an argon2 PHC hash (see `qpac hash`)")
		return &PlainVerifier{secret: []byte(secret)}, nil
	}
}

// PlainVerifier compares the token byte-for-byte in constant time.
type PlainVerifier struct {
	secret []byte
}

// Verify implements Verifier.
func (v *PlainVerifier) Verify(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), v.secret) == 1
}

// BcryptVerifier checks the token against a bcrypt hash.
type BcryptVerifier struct {
	hash []byte
}

// Verify implements Verifier.
func (v *BcryptVerifier) Verify(token string) bool {
	return bcrypt.CompareHashAndPassword(v.hash, []byte(token)) == nil
}

// Argon2Verifier checks the token against an argon2 PHC hash.
type Argon2Verifier struct {
	hash *phcHash
}

// Verify implements Verifier.
func (v *Argon2Verifier) Verify(token string) bool {
	return v.hash.matches([]byte(token))
}

func isBcrypt(s string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
