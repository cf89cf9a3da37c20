package history

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Migrate ensures the archive schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			start_source INTEGER NOT NULL,
			outcome INTEGER NOT NULL,
			reason INTEGER NOT NULL,
			total_ns INTEGER NOT NULL,
			expected_ns INTEGER NOT NULL,
			drift_ns INTEGER NOT NULL,
			drift_exceeded INTEGER NOT NULL,
			log_path TEXT NULL,
			archived_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create sessions table: %w", err)
	}

	// Durations are stored in nanoseconds; a cancelled phase keeps its
	// partial duration.
	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS phases (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			cycle INTEGER NOT NULL,
			expected_ns INTEGER NOT NULL,
			actual_ns INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			offset_ns INTEGER NOT NULL,
			outcome INTEGER NOT NULL,
			flips INTEGER NOT NULL,
			expected_flips INTEGER NOT NULL,
			PRIMARY KEY(session_id, seq),
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create phases table: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_sessions_started_at: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit transaction: %w", err)
	}
	return nil
}
