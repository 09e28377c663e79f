package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmerrifield20/qpac/internal/pac"
)

// SQLiteCache stores artifacts in the pac table and the latest pointer in
// the conf table. Writes are single upsert statements, so concurrent
// callers need no process-level lock.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache creates a SQLiteCache on an already migrated database.
func NewSQLiteCache(db *sql.DB) *SQLiteCache {
	return &SQLiteCache{db: db}
}

// Upload implements Cache.
func (c *SQLiteCache) Upload(ctx context.Context, a pac.Artifact) error {
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO pac (hash, file) VALUES (?, ?)
		 ON CONFLICT (hash) DO UPDATE SET file = excluded.file`,
		a.Hash, a.Body,
	); err != nil {
		return fmt.Errorf("upload artifact %s: %w", a.Hash, err)
	}
	return nil
}

// Get implements Cache.
func (c *SQLiteCache) Get(ctx context.Context, hash string) (pac.Artifact, error) {
	var body string
	err := c.db.QueryRowContext(ctx, `SELECT file FROM pac WHERE hash = ?`, hash).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pac.Artifact{}, ErrNotFound
		}
		return pac.Artifact{}, fmt.Errorf("get artifact %s: %w", hash, err)
	}
	return pac.Artifact{Hash: hash, Body: body}, nil
}

// SetLatest implements Cache.
func (c *SQLiteCache) SetLatest(ctx context.Context, hash string) error {
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO conf (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		latestKey, hash,
	); err != nil {
		return fmt.Errorf("set latest artifact: %w", err)
	}
	return nil
}

// Latest implements Cache.
func (c *SQLiteCache) Latest(ctx context.Context) (pac.Artifact, error) {
	var a pac.Artifact
	err := c.db.QueryRowContext(ctx,
		`SELECT p.hash, p.file FROM conf c JOIN pac p ON p.hash = c.value WHERE c.key = ?`,
		latestKey,
	).Scan(&a.Hash, &a.Body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pac.Artifact{}, ErrNotFound
		}
		return pac.Artifact{}, fmt.Errorf("get latest artifact: %w", err)
	}
	return a, nil
}
