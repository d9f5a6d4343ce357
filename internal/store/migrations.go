package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all WebPanel tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS panel_sessions (
		id           TEXT PRIMARY KEY,
		created_at   INTEGER NOT NULL,
		expires_at   INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_panel_sessions_expires_at ON panel_sessions(expires_at)`,

	`CREATE TABLE IF NOT EXISTS preferences (
		session_id TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, key)
	)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
