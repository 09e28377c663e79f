package whitelist

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteStore persists the whitelist in the white_list table of a SQLite
// database. The host column is the primary key, so uniqueness is enforced by
// the database rather than by a process lock.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLiteStore on an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT host FROM white_list ORDER BY host COLLATE BINARY`)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate white_list: %w", err)
	}
	return hosts, nil
}

// Add implements Store. The insert is a no-op on conflict; zero affected
// rows is reported as ErrAlreadyExists.
func (s *SQLiteStore) Add(ctx context.Context, host string) error {
	if err := validate(host); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO white_list (host) VALUES (?) ON CONFLICT (host) DO NOTHING`, host)
	if err != nil {
		return fmt.Errorf("insert host: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert host: rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, host string) error {
	if err := validate(host); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM white_list WHERE host = ?`, host)
	if err != nil {
		return fmt.Errorf("delete host: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete host: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
