package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/qpac/internal/pac"
)

// PostgresCache is the PostgreSQL implementation of Cache. It shares the
// pac/conf schema with SQLiteCache.
type PostgresCache struct {
	pool *pgxpool.Pool
}

// NewPostgresCache creates a PostgresCache backed by the given pool.
func NewPostgresCache(pool *pgxpool.Pool) *PostgresCache {
	return &PostgresCache{pool: pool}
}

// Upload implements Cache.
func (c *PostgresCache) Upload(ctx context.Context, a pac.Artifact) error {
	if _, err := c.pool.Exec(ctx,
		`INSERT INTO pac (hash, file) VALUES ($1, $2)
		 ON CONFLICT (hash) DO UPDATE SET file = EXCLUDED.file`,
		a.Hash, a.Body,
	); err != nil {
		return fmt.Errorf("upload artifact %s: %w", a.Hash, err)
	}
	return nil
}

// Get implements Cache.
func (c *PostgresCache) Get(ctx context.Context, hash string) (pac.Artifact, error) {
	var body string
	if err := c.pool.QueryRow(ctx, `SELECT file FROM pac WHERE hash = $1`, hash).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pac.Artifact{}, ErrNotFound
		}
		return pac.Artifact{}, fmt.Errorf("get artifact %s: %w", hash, err)
	}
	return pac.Artifact{Hash: hash, Body: body}, nil
}

// SetLatest implements Cache.
func (c *PostgresCache) SetLatest(ctx context.Context, hash string) error {
	if _, err := c.pool.Exec(ctx,
		`INSERT INTO conf (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		latestKey, hash,
	); err != nil {
		return fmt.Errorf("set latest artifact: %w", err)
	}
	return nil
}

// Latest implements Cache.
func (c *PostgresCache) Latest(ctx context.Context) (pac.Artifact, error) {
	var a pac.Artifact
	if err := c.pool.QueryRow(ctx,
		`SELECT p.hash, p.file FROM conf c JOIN pac p ON p.hash = c.value WHERE c.key = $1`,
		latestKey,
	).Scan(&a.Hash, &a.Body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pac.Artifact{}, ErrNotFound
		}
		return pac.Artifact{}, fmt.Errorf("get latest artifact: %w", err)
	}
	return a, nil
}
