package store

import (
	"context"
	"time"

	"github.com/me/webpanel/pkg/model"
)

// Store defines the persistence layer for panel sessions and the
// per-session preferences that stand in for browser local storage.
type Store interface {
	// Panel sessions
	CreateSession(ctx context.Context, sess *model.PanelSession) error
	GetSession(ctx context.Context, id string) (*model.PanelSession, error)
	TouchSession(ctx context.Context, id string, seen time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) ([]string, error)

	// Preferences (fixed keys, opaque string values)
	GetPreference(ctx context.Context, sessionID, key string) (string, bool, error)
	SetPreference(ctx context.Context, sessionID, key, value string) error
	DeletePreferences(ctx context.Context, sessionID string) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
