// Package storage selects and opens the whitelist/artifact backend from a
// single location string.
package storage

import (
	"context"
	"strings"

	"github.com/jmerrifield20/qpac/internal/artifact"
	"github.com/jmerrifield20/qpac/internal/whitelist"
	"go.uber.org/zap"
)

// Kind names a storage backend.
type Kind string

const (
	KindMemory   Kind = "memory"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// Backend bundles the whitelist store and artifact cache of one backend.
type Backend struct {
	Kind      Kind
	Whitelist whitelist.Store
	Artifacts artifact.Cache

	ping  func(ctx context.Context) error
	close func() error
}

// Ping reports whether the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// KindOf reports which backend Open would choose for location.
func KindOf(location string) Kind {
	switch {
	case location == "":
		return KindMemory
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return KindPostgres
	default:
		return KindSQLite
	}
}

// NewMemory returns a volatile backend.
func NewMemory() *Backend {
	return &Backend{
		Kind:      KindMemory,
		Whitelist: whitelist.NewMemoryStore(),
		Artifacts: artifact.NewMemoryCache(),
	}
}

// Open opens the backend for location: empty for memory, a postgres:// URL
// for PostgreSQL, anything else is treated as a SQLite path.
func Open(ctx context.Context, location string, logger *zap.Logger) (*Backend, error) {
	switch KindOf(location) {
	case KindMemory:
		return NewMemory(), nil

	case KindPostgres:
		pool, err := OpenPostgres(ctx, location, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Kind:      KindPostgres,
			Whitelist: whitelist.NewPostgresStore(pool),
			Artifacts: artifact.NewPostgresCache(pool),
			ping:      pool.Ping,
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	default:
		db, err := OpenSQLite(ctx, location, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Kind:      KindSQLite,
			Whitelist: whitelist.NewSQLiteStore(db),
			Artifacts: artifact.NewSQLiteCache(db),
			ping:      db.PingContext,
			close:     db.Close,
		}, nil
	}
}
