package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OpenPostgres connects to the PostgreSQL database at url and applies
// pending migrations.
func OpenPostgres(ctx context.Context, url string, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := migrate(ctx, postgresMigrator{pool}, "postgres", logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return pool, nil
}

type postgresMigrator struct {
	pool *pgxpool.Pool
}

func (m postgresMigrator) ensureTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint NOT NULL,
			dirty   boolean NOT NULL,
			PRIMARY KEY (version)
		)`)
	return err
}

func (m postgresMigrator) applied(ctx context.Context, version int64) (bool, error) {
	var exists bool
	err := m.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1 AND dirty = false)`, version,
	).Scan(&exists)
	return exists, err
}

func (m postgresMigrator) markDirty(ctx context.Context, version int64) error {
	_, err := m.pool.Exec(ctx,
		`INSERT INTO schema_migrations (version, dirty) VALUES ($1, true)
		 ON CONFLICT (version) DO UPDATE SET dirty = true`, version)
	return err
}

func (m postgresMigrator) markClean(ctx context.Context, version int64) error {
	_, err := m.pool.Exec(ctx, `UPDATE schema_migrations SET dirty = false WHERE version = $1`, version)
	return err
}

func (m postgresMigrator) exec(ctx context.Context, sql string) error {
	_, err := m.pool.Exec(ctx, sql)
	return err
}
