// Package whitelist holds the ordered, duplicate-free set of hostnames that
// are routed through the proxy by the generated PAC file.
package whitelist

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrAlreadyExists is returned by Add when the host is already whitelisted.
var ErrAlreadyExists = errors.New("host already exists")

// ErrNotFound is returned by Remove when the host is not whitelisted.
var ErrNotFound = errors.New("host not found")

// ErrInvalidHost is returned when a host is empty, is not valid UTF-8 or
// contains a NUL byte.
var ErrInvalidHost = errors.New("host must be non-empty UTF-8 without NUL bytes")

// Store is the whitelist persistence interface.
// MemoryStore, SQLiteStore and PostgresStore implement it with identical
// error semantics.
type Store interface {
	// List returns a snapshot of the whitelist in strictly ascending
	// byte-wise order.
	List(ctx context.Context) ([]string, error)

	// Add inserts host, keeping the order. Returns ErrAlreadyExists if the
	// host is already present; the whitelist is left unchanged.
	Add(ctx context.Context, host string) error

	// Remove deletes host. Returns ErrNotFound if the host is absent.
	Remove(ctx context.Context, host string) error
}

// validate rejects hosts the PAC encoding or PostgreSQL text cannot carry
// byte for byte, so every backend accepts the same set of hosts.
func validate(host string) error {
	if host == "" || !utf8.ValidString(host) || strings.IndexByte(host, 0) >= 0 {
		return ErrInvalidHost
	}
	return nil
}
