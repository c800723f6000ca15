package store

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// migrations run in order; PRAGMA user_version records the last applied.
var migrations = []migration{
	{version: 1, name: "initial schema", apply: execAll(
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			prompt TEXT NOT NULL,
			search_enabled INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL,
			result_json TEXT,
			error TEXT,
			created_at INTEGER NOT NULL,
			completed_at INTEGER,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at)`,
		`CREATE TABLE IF NOT EXISTS search_cache (
			cache_key TEXT PRIMARY KEY,
			response_json TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_cache_expires ON search_cache(expires_at)`,
		`CREATE TABLE IF NOT EXISTS rate_limits (
			endpoint TEXT PRIMARY KEY,
			request_count INTEGER NOT NULL DEFAULT 0,
			window_start INTEGER NOT NULL,
			backoff_until INTEGER,
			last_429_at INTEGER
		)`,
	)},
	// Unversioned databases may predate tasks.updated_at.
	{version: 2, name: "task update tracking", apply: addColumn("tasks", "updated_at", "INTEGER NOT NULL DEFAULT 0")},
}

// SchemaVersion is the version Migrate brings a database to.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies pending migrations. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx = orBackground(ctx)

	current, err := s.userVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("store migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *Store) userVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := m.apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func execAll(stmts ...string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

func addColumn(table, column, def string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		exists, err := hasColumn(ctx, tx, table, column)
		if err != nil || exists {
			return err
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def))
		return err
	}
}

func hasColumn(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = ?", table), column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	return count > 0, nil
}
