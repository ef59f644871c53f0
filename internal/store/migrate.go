package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	inkdb "inkwell/api/db"
)

// Migration is one numbered schema change and its rollback. Version is the
// up file name, which is what schema_migrations records.
type Migration struct {
	Number  string
	Version string
	Up      string
	Down    string
}

var migrationName = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.(up|down)\.sql$`)

// MigrationSource returns dir when set, otherwise the migrations embedded in
// the binary.
func MigrationSource(dir string) (fs.FS, error) {
	if strings.TrimSpace(dir) != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(inkdb.Migrations, "migrations")
}

// LoadMigrations reads paired up/down files from the root of fsys, ordered by
// number. Files not named like 0001_name.up.sql are ignored.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byNumber := make(map[string]*Migration)
	hasDown := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := migrationName.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		contents, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		number := match[1]
		m := byNumber[number]
		if m == nil {
			m = &Migration{Number: number}
			byNumber[number] = m
		}
		switch match[2] {
		case "up":
			if m.Version != "" {
				return nil, fmt.Errorf("migration %s has two up files: %s and %s", number, m.Version, name)
			}
			m.Version = name
			m.Up = string(contents)
		case "down":
			if hasDown[number] {
				return nil, fmt.Errorf("migration %s has two down files", number)
			}
			hasDown[number] = true
			m.Down = string(contents)
		}
	}

	out := make([]Migration, 0, len(byNumber))
	for number, m := range byNumber {
		if m.Version == "" {
			return nil, fmt.Errorf("migration %s has no up file", number)
		}
		if !hasDown[number] {
			return nil, fmt.Errorf("migration %s has no down file", number)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// ApplyMigrations runs every migration in fsys not yet recorded, each in its
// own transaction, and returns the versions it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migrations {
		if migrated, err := isMigrated(ctx, db, m.Version); err != nil {
			return applied, err
		} else if migrated {
			continue
		}

		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("execute migration %s: %w", m.Version, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, m.Version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		logger.Info("migration applied", "version", m.Version)
		applied = append(applied, m.Version)
	}
	return applied, nil
}

// RollbackMigrations reverts the last steps applied migrations, newest
// first, and returns the versions it reverted.
func RollbackMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, steps int, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if steps <= 0 {
		return nil, nil
	}
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	versions, err := appliedVersions(ctx, db, steps)
	if err != nil {
		return nil, err
	}

	var reverted []string
	for _, version := range versions {
		m, ok := byVersion[version]
		if !ok {
			return reverted, fmt.Errorf("no migration files for applied version %s", version)
		}
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if down := strings.TrimSpace(m.Down); down != "" {
				if _, err := tx.ExecContext(ctx, down); err != nil {
					return fmt.Errorf("revert migration %s: %w", version, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, version); err != nil {
				return fmt.Errorf("unrecord migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return reverted, err
		}
		logger.Info("migration reverted", "version", version)
		reverted = append(reverted, version)
	}
	return reverted, nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}

func appliedVersions(ctx context.Context, db *sql.DB, limit int) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
