package ui

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/me/webpanel/internal/store"
	"github.com/me/webpanel/pkg/model"
)

const (
	// SessionCookieName is the name of the panel session cookie.
	SessionCookieName = "webpanel_session"
	// SessionDuration is the default panel session lifetime.
	SessionDuration = 24 * time.Hour
)

// SessionManager handles panel session creation, validation, and cleanup.
// Panel sessions only identify which state a browser owns; the user's
// identity lives in the backend's own cookies.
type SessionManager struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionManager creates a session manager. A non-positive ttl uses
// SessionDuration.
func NewSessionManager(st store.Store, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = SessionDuration
	}
	return &SessionManager{store: st, ttl: ttl, now: time.Now}
}

// CreateSession creates and stores a new panel session.
func (sm *SessionManager) CreateSession(ctx context.Context) (*model.PanelSession, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := sm.now()
	sess := &model.PanelSession{
		ID:         sessionID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(sm.ttl),
		LastSeenAt: now,
	}
	if err := sm.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
// Returns nil if the session doesn't exist or has expired.
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) (*model.PanelSession, error) {
	sess, err := sm.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if sm.now().After(sess.ExpiresAt) {
		_ = sm.store.DeleteSession(ctx, sessionID)
		return nil, nil
	}
	return sess, nil
}

// Ensure returns the request's panel session, creating one and setting the
// cookie when the request has none or its session expired. The bool reports
// whether a new session was created.
func (sm *SessionManager) Ensure(w http.ResponseWriter, r *http.Request, secure bool) (*model.PanelSession, bool, error) {
	sess, err := sm.GetSessionFromRequest(r)
	if err != nil {
		return nil, false, err
	}
	if sess != nil {
		now := sm.now()
		if err := sm.store.TouchSession(r.Context(), sess.ID, now); err != nil {
			return nil, false, fmt.Errorf("touch session: %w", err)
		}
		sess.LastSeenAt = now
		return sess, false, nil
	}

	sess, err = sm.CreateSession(r.Context())
	if err != nil {
		return nil, false, err
	}
	SetSessionCookie(w, sess, secure)
	return sess, true, nil
}

// DeleteSession removes a session and its preferences.
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	return sm.store.DeleteSession(ctx, sessionID)
}

// CleanupExpiredSessions removes expired sessions and returns their IDs so
// callers can drop the matching in-memory state.
func (sm *SessionManager) CleanupExpiredSessions(ctx context.Context) ([]string, error) {
	return sm.store.DeleteExpiredSessions(ctx, sm.now())
}

// GetSessionFromRequest extracts the session from the request cookie.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*model.PanelSession, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil // No cookie, no session
	}
	return sm.GetSession(r.Context(), cookie.Value)
}

// SetSessionCookie sets the session cookie on the response. SameSite is Lax
// so the cookie survives the redirect back from the OAuth provider.
func SetSessionCookie(w http.ResponseWriter, sess *model.PanelSession, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// generateSessionID generates a cryptographically secure random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "sess_" + hex.EncodeToString(b), nil
}
