package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strings"
	"time"
)

// migrationFile matches YYYYMMDD_HHMMSS_name.up.sql and its .down.sql pair.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([a-z0-9_]+)\.(up|down)\.sql$`)

// ErrNoAppliedMigrations is returned by MigrateDown when there is nothing to revert.
var ErrNoAppliedMigrations = errors.New("database: no applied migrations")

// Migration is one versioned schema change.
type Migration struct {
	// Version orders migrations, e.g. 20260101_000000.
	Version string
	Name    string
	Up      string
	Down    string
}

// MigrationState pairs a migration with its applied record. A migration
// recorded in the database but absent from the source has empty Up and Down.
type MigrationState struct {
	Migration
	Applied   bool
	AppliedAt time.Time
}

// appliedRecord is one row of schema_migrations.
type appliedRecord struct {
	name      string
	appliedAt time.Time
}

// readMigrations loads the migration files at the root of source, oldest
// first. Files not named like a migration are ignored.
func readMigrations(source fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migration source: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		match := migrationFile.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		version, name, direction := match[1], match[2], match[3]

		body, err := fs.ReadFile(source, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration %s is named both %q and %q", version, m.Name, name)
		}
		if direction == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.Up) == "" {
			return nil, fmt.Errorf("migration %s (%s) has no up SQL", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b Migration) int {
		return strings.Compare(a.Version, b.Version)
	})
	return migrations, nil
}

// Migrate applies every migration in source that is not yet recorded and
// returns the ones it applied. Each runs in its own transaction, so a
// failure leaves earlier migrations committed and a rerun resumes there.
func (db *DB) Migrate(ctx context.Context, source fs.FS) ([]Migration, error) {
	migrations, err := readMigrations(source)
	if err != nil {
		return nil, err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var done []Migration
	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Name, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
		done = append(done, m)
	}
	return done, nil
}

// MigrateDown reverts the most recently applied migration using the down
// SQL from source and returns it.
func (db *DB) MigrateDown(ctx context.Context, source fs.FS) (Migration, error) {
	states, err := db.MigrationStatus(ctx, source)
	if err != nil {
		return Migration{}, err
	}

	var latest *MigrationState
	for i := range states {
		if states[i].Applied {
			latest = &states[i]
		}
	}
	if latest == nil {
		return Migration{}, ErrNoAppliedMigrations
	}
	m := latest.Migration
	if strings.TrimSpace(m.Down) == "" {
		return Migration{}, fmt.Errorf("migration %s (%s) has no down SQL", m.Version, m.Name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
	if err != nil {
		return Migration{}, fmt.Errorf("reverting migration %s (%s): %w", m.Version, m.Name, err)
	}
	return m, nil
}

// MigrationStatus lists every migration known to source or to the
// database, in version order.
func (db *DB) MigrationStatus(ctx context.Context, source fs.FS) ([]MigrationState, error) {
	migrations, err := readMigrations(source)
	if err != nil {
		return nil, err
	}
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	states := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		rec, ok := applied[m.Version]
		states = append(states, MigrationState{Migration: m, Applied: ok, AppliedAt: rec.appliedAt})
		delete(applied, m.Version)
	}
	for version, rec := range applied {
		states = append(states, MigrationState{
			Migration: Migration{Version: version, Name: rec.name},
			Applied:   true,
			AppliedAt: rec.appliedAt,
		})
	}
	slices.SortFunc(states, func(a, b MigrationState) int {
		return strings.Compare(a.Version, b.Version)
	})
	return states, nil
}

// appliedMigrations creates schema_migrations if needed and returns its
// rows keyed by version.
func (db *DB) appliedMigrations(ctx context.Context) (map[string]appliedRecord, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		) STRICT
	`); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version, name, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]appliedRecord)
	for rows.Next() {
		var version, appliedAt string
		var rec appliedRecord
		if err := rows.Scan(&version, &rec.name, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		rec.appliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // Written by Migrate
		applied[version] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
