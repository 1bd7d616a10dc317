package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"bbsfolio/api/db/migrations"
)

// ErrSchemaOutdated is reported while migrations known to the binary are not applied.
var ErrSchemaOutdated = errors.New("schema has pending migrations")

var migrationFile = regexp.MustCompile(`^(\d{4})_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one numbered schema step with its forward and backward files.
type Migration struct {
	Version int
	// Name is the file stem without direction, e.g. "0001_content". It is what
	// schema_migrations records.
	Name string
	Up   string
	Down string
}

// MigrationSource returns dir as a file system, or the migrations built into the
// binary when dir is empty.
func MigrationSource(dir string) fs.FS {
	if strings.TrimSpace(dir) == "" {
		return migrations.Files
	}
	return os.DirFS(dir)
}

// LoadMigrations reads the paired up/down files in fsys in version order. Versions
// must start at 1 and have no gaps. Files that are not .sql are ignored.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		match := migrationFile.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("read migrations: unexpected file %s", name)
		}
		version, _ := strconv.Atoi(match[1])
		stem := match[1] + "_" + match[2]
		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: stem}
			byVersion[version] = m
		}
		if m.Name != stem {
			return nil, fmt.Errorf("read migrations: version %04d has two names (%s, %s)", version, m.Name, stem)
		}
		if match[3] == "up" {
			m.Up = name
		} else {
			m.Down = name
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("read migrations: %s needs both up and down files", m.Name)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	for i, m := range out {
		if m.Version != i+1 {
			return nil, fmt.Errorf("read migrations: expected version %04d, found %s", i+1, m.Name)
		}
	}
	return out, nil
}

// ApplyMigrations runs every pending up file in its own transaction and returns the
// names it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) ([]string, error) {
	all, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range all {
		if applied[m.Name] {
			continue
		}
		if err := runMigration(ctx, db, fsys, m.Name, m.Up,
			`INSERT INTO schema_migrations(version) VALUES($1)`); err != nil {
			return ran, err
		}
		ran = append(ran, m.Name)
	}
	return ran, nil
}

// RollbackMigrations runs the down files of the newest applied migrations, steps of
// them, or all of them when steps <= 0. It returns the names it rolled back.
func RollbackMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, steps int) ([]string, error) {
	all, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for i := len(all) - 1; i >= 0; i-- {
		if steps > 0 && len(ran) == steps {
			break
		}
		m := all[i]
		if !applied[m.Name] {
			continue
		}
		if err := runMigration(ctx, db, fsys, m.Name, m.Down,
			`DELETE FROM schema_migrations WHERE version=$1`); err != nil {
			return ran, err
		}
		ran = append(ran, m.Name)
	}
	return ran, nil
}

// PendingMigrations lists the migrations in fsys that the database has not applied.
func PendingMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) ([]string, error) {
	all, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, m := range all {
		if !applied[m.Name] {
			pending = append(pending, m.Name)
		}
	}
	return pending, nil
}

// SchemaCheck returns a readiness probe that fails with ErrSchemaOutdated while any
// migration in fsys is pending.
func SchemaCheck(db *sql.DB, fsys fs.FS) func(context.Context) error {
	return func(ctx context.Context) error {
		pending, err := PendingMigrations(ctx, db, fsys)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return fmt.Errorf("%w: %s", ErrSchemaOutdated, strings.Join(pending, ", "))
		}
		return nil
	}
}

func runMigration(ctx context.Context, db *sql.DB, fsys fs.FS, name, file, record string) error {
	contents, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", file, err)
	}
	defer func() { _ = tx.Rollback() }()

	if body := strings.TrimSpace(string(contents)); body != "" {
		if _, err := tx.ExecContext(ctx, body); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	if _, err := tx.ExecContext(ctx, record, name); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
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

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return applied, nil
}
