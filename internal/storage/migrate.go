package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// migrationDB is the minimal surface the migrator needs from a backend.
// Both backends keep a schema_migrations table (bigint version + dirty flag)
// compatible with golang-migrate.
type migrationDB interface {
	ensureTable(ctx context.Context) error
	applied(ctx context.Context, version int64) (bool, error)
	markDirty(ctx context.Context, version int64) error
	markClean(ctx context.Context, version int64) error
	exec(ctx context.Context, sql string) error
}

// migrate applies every migrations/<dialect>/*.sql file not yet recorded as
// clean, in filename order. Returns the number of files applied.
func migrate(ctx context.Context, db migrationDB, dialect string, logger *zap.Logger) (int, error) {
	if err := db.ensureTable(ctx); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrationFiles, dir)
	if err != nil {
		return 0, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, f := range files {
		ver, err := versionFromFile(f)
		if err != nil {
			return applied, fmt.Errorf("parse version from %s: %w", f, err)
		}

		done, err := db.applied(ctx, ver)
		if err != nil {
			return applied, fmt.Errorf("check %s: %w", f, err)
		}
		if done {
			continue
		}

		sql, err := fs.ReadFile(migrationFiles, path.Join(dir, f))
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", f, err)
		}

		// Mark dirty before applying so a crash is visible.
		if err := db.markDirty(ctx, ver); err != nil {
			return applied, fmt.Errorf("mark dirty %s: %w", f, err)
		}
		if err := db.exec(ctx, string(sql)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", f, err)
		}
		if err := db.markClean(ctx, ver); err != nil {
			return applied, fmt.Errorf("mark clean %s: %w", f, err)
		}

		logger.Info("migration applied", zap.String("dialect", dialect), zap.String("file", f))
		applied++
	}
	return applied, nil
}

// versionFromFile extracts the leading integer from a migration filename.
// "001_init.sql" → 1
func versionFromFile(filename string) (int64, error) {
	prefix, _, _ := strings.Cut(filename, "_")
	return strconv.ParseInt(prefix, 10, 64)
}
