package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned for malformed or unsupported PHC strings.
var ErrInvalidHash = errors.New("invalid argon2 PHC hash")

// Params are the argon2id cost parameters used by HashToken.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  int
	KeyLength   uint32
}

// DefaultParams are the argon2id costs used by `qpac hash`.
var DefaultParams = Params{
	Memory:      65540,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  32,
	KeyLength:   32,
}

// phcHash is a parsed $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phcHash struct {
	variant string
	version int
	params  Params
	salt    []byte
	key     []byte
}

// HashToken returns an argon2id PHC string for token using DefaultParams.
func HashToken(token string) (string, error) {
	return HashTokenWithParams(token, DefaultParams)
}

// HashTokenWithParams returns an argon2id PHC string for token.
func HashTokenWithParams(token string, p Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(token), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func parsePHC(s string) (*phcHash, error) {
	parts := strings.Split(s, "$")
	// "", variant, [v=..], params, salt, key
	if len(parts) != 5 && len(parts) != 6 {
		return nil, fmt.Errorf("%w: unexpected number of fields", ErrInvalidHash)
	}

	h := &phcHash{variant: parts[1], version: 0x10}
	if h.variant != "argon2id" && h.variant != "argon2i" {
		return nil, fmt.Errorf("%w: unsupported variant %q", ErrInvalidHash, h.variant)
	}

	rest := parts[2:]
	if len(parts) == 6 {
		v, ok := strings.CutPrefix(parts[2], "v=")
		if !ok {
			return nil, fmt.Errorf("%w: missing version", ErrInvalidHash)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: version: %v", ErrInvalidHash, err)
		}
		h.version = n
		rest = parts[3:]
	}
	if h.version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHash, h.version)
	}

	for _, kv := range strings.Split(rest[0], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrInvalidHash, kv)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %s: %v", ErrInvalidHash, k, err)
		}
		switch k {
		case "m":
			h.params.Memory = uint32(n)
		case "t":
			h.params.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("%w: parallelism %d out of range", ErrInvalidHash, n)
			}
			h.params.Parallelism = uint8(n)
		}
	}
	if h.params.Memory == 0 || h.params.Iterations == 0 || h.params.Parallelism == 0 {
		return nil, fmt.Errorf("%w: m, t and p are required", ErrInvalidHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(rest[1]); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(rest[2]); err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}
	if len(h.key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidHash)
	}
	return h, nil
}

func (h *phcHash) matches(token []byte) bool {
	n := uint32(len(h.key))
	var key []byte
	if h.variant == "argon2id" {
		key = argon2.IDKey(token, h.salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, n)
	} else {
		key = argon2.Key(token, h.salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, n)
	}
	return subtle.ConstantTimeCompare(key, h.key) == 1
}
