package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied to every pooled connection: WAL so readers are
// never blocked by the writer, and a busy timeout instead of SQLITE_BUSY.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(3000)",
	"foreign_keys(1)",
	"temp_store(MEMORY)",
	"cache_size(10000)",
}

// OpenSQLite opens (creating if missing) the SQLite database at path and
// applies pending migrations. ":memory:" yields a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	memory := path == ":memory:" || path == ""
	if memory {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if memory {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := migrate(ctx, sqliteMigrator{db}, "sqlite", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

type sqliteMigrator struct {
	db *sql.DB
}

func (m sqliteMigrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL PRIMARY KEY,
			dirty   INTEGER NOT NULL
		)`)
	return err
}

func (m sqliteMigrator) applied(ctx context.Context, version int64) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ? AND dirty = 0)`, version,
	).Scan(&exists)
	return exists, err
}

func (m sqliteMigrator) markDirty(ctx context.Context, version int64) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, dirty) VALUES (?, 1)
		 ON CONFLICT (version) DO UPDATE SET dirty = 1`, version)
	return err
}

func (m sqliteMigrator) markClean(ctx context.Context, version int64) error {
	_, err := m.db.ExecContext(ctx, `UPDATE schema_migrations SET dirty = 0 WHERE version = ?`, version)
	return err
}

func (m sqliteMigrator) exec(ctx context.Context, sql string) error {
	_, err := m.db.ExecContext(ctx, sql)
	return err
}
