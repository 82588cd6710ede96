package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "tracked_artifacts: bot messages awaiting cleanup",
		SQL: `
CREATE TABLE tracked_artifacts (
    id              TEXT PRIMARY KEY,
    kind            TEXT NOT NULL CHECK (kind IN ('chart_response', 'button_prompt', 'thread_system_notice')),
    conversation_id TEXT NOT NULL DEFAULT '',
    thread_id       TEXT NOT NULL DEFAULT '',
    owner           TEXT NOT NULL DEFAULT '',
    ticker          TEXT NOT NULL DEFAULT '',
    tickers         TEXT NOT NULL DEFAULT '[]',
    cache_keys      TEXT NOT NULL DEFAULT '[]',
    ephemeral       INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_artifacts_created_at ON tracked_artifacts(created_at);
CREATE INDEX idx_artifacts_thread     ON tracked_artifacts(thread_id);
`,
	},
	{
		Version:     2,
		Description: "cleanup_runs: history of retention ticks",
		SQL: `
CREATE TABLE cleanup_runs (
    tick_id         TEXT PRIMARY KEY,
    started_at      INTEGER NOT NULL,
    duration_ms     INTEGER NOT NULL,
    expired         INTEGER NOT NULL DEFAULT 0,
    deleted         INTEGER NOT NULL DEFAULT 0,
    errors          INTEGER NOT NULL DEFAULT 0,
    cache_released  INTEGER NOT NULL DEFAULT 0,
    tracking_swept  INTEGER NOT NULL DEFAULT 0,
    threads_removed INTEGER NOT NULL DEFAULT 0,
    orphans_removed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_runs_started_at ON cleanup_runs(started_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
