package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		source_ref    TEXT NOT NULL,
		rule          TEXT NOT NULL,
		destinations  TEXT NOT NULL DEFAULT '[]',
		options       TEXT NOT NULL DEFAULT '{}',
		active        INTEGER NOT NULL DEFAULT 1,
		created_at    TEXT NOT NULL,
		created_by    TEXT NOT NULL DEFAULT '',
		last_run      TEXT,
		next_run      TEXT,
		run_count     INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		max_failures  INTEGER NOT NULL DEFAULT 3,
		retry_delay_ms INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_source ON tasks(source_ref)`,

	`CREATE TABLE IF NOT EXISTS results (
		execution_id TEXT PRIMARY KEY,
		task_id      TEXT NOT NULL,
		success      INTEGER NOT NULL DEFAULT 0,
		artifact_ref TEXT NOT NULL DEFAULT '',
		err_kind     TEXT NOT NULL DEFAULT '',
		err_message  TEXT NOT NULL DEFAULT '',
		deliveries   TEXT NOT NULL DEFAULT '[]',
		started_at   TEXT NOT NULL,
		duration_ms  INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_results_task ON results(task_id, started_at)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
