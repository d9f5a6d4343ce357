package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/webpanel/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// An in-memory database exists per connection; keep exactly one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Panel session operations ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.PanelSession) error {
	s.logger.Debug("sql", "op", "insert", "table", "panel_sessions", "id", sess.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO panel_sessions (id, created_at, expires_at, last_seen_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.CreatedAt.Unix(), sess.ExpiresAt.Unix(), sess.LastSeenAt.Unix(),
	)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.PanelSession, error) {
	s.logger.Debug("sql", "op", "select", "table", "panel_sessions", "id", id)

	var sess model.PanelSession
	var createdAt, expiresAt, lastSeen int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, expires_at, last_seen_at FROM panel_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &createdAt, &expiresAt, &lastSeen)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.ExpiresAt = time.Unix(expiresAt, 0)
	sess.LastSeenAt = time.Unix(lastSeen, 0)
	return &sess, nil
}

func (s *SQLiteStore) TouchSession(ctx context.Context, id string, seen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE panel_sessions SET last_seen_at = ? WHERE id = ?`, seen.Unix(), id)
	return err
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "panel_sessions", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM panel_sessions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteExpiredSessions removes sessions that expired before now, along with
// their preferences, and returns the removed IDs.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) ([]string, error) {
	s.logger.Debug("sql", "op", "delete_expired", "table", "panel_sessions")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM panel_sessions WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM preferences WHERE session_id = ?`, id); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM panel_sessions WHERE expires_at < ?`, now.Unix()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// --- Preference operations ---

func (s *SQLiteStore) GetPreference(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE session_id = ? AND key = ?`, sessionID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) SetPreference(ctx context.Context, sessionID, key, value string) error {
	s.logger.Debug("sql", "op", "upsert", "table", "preferences", "session", sessionID, "key", key)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sessionID, key, value, time.Now().Unix(),
	)
	return err
}

func (s *SQLiteStore) DeletePreferences(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE session_id = ?`, sessionID)
	return err
}
