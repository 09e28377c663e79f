package whitelist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the whitelist in PostgreSQL. Ordering uses the "C"
// collation so List matches the byte-wise order of MemoryStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT host FROM white_list ORDER BY host COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("query white_list: %w", err)
	}
	defer rows.Close()

	hosts := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

// Add implements Store.
func (s *PostgresStore) Add(ctx context.Context, host string) error {
	if err := validate(host); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO white_list (host) VALUES ($1) ON CONFLICT (host) DO NOTHING`, host)
	if err != nil {
		return fmt.Errorf("insert host: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Remove implements Store.
func (s *PostgresStore) Remove(ctx context.Context, host string) error {
	if err := validate(host); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM white_list WHERE host = $1`, host)
	if err != nil {
		return fmt.Errorf("delete host: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
