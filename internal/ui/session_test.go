package ui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/webpanel/internal/logging"
	"github.com/me/webpanel/internal/store"
	"github.com/me/webpanel/pkg/model"
)

func TestSessionManager_CreateAndGet(t *testing.T) {
	st := setupTestStore(t)
	defer st.Close()

	sm := NewSessionManager(st, time.Hour)
	ctx := context.Background()

	sess, err := sm.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "sess_") {
		t.Errorf("expected sess_ prefix, got %q", sess.ID)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != time.Hour {
		t.Errorf("expected 1h lifetime, got %v", got)
	}

	retrieved, err := sm.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if retrieved == nil || retrieved.ID != sess.ID {
		t.Fatalf("expected session %q, got %+v", sess.ID, retrieved)
	}
}

func TestSessionManager_DefaultLifetime(t *testing.T) {
	st := setupTestStore(t)
	defer st.Close()

	sm := NewSessionManager(st, 0)
	sess, err := sm.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != 24*time.Hour {
		t.Errorf("default lifetime = %v, want 24h", got)
	}
}

func TestSessionManager_GetSession_NotFound(t *testing.T) {
	st := setupTestStore(t)
	defer st.Close()

	sm := NewSessionManager(st, 0)
	sess, err := sm.GetSession(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess != nil {
		t.Error("expected nil session for nonexistent ID")
	}
}

func TestSessionManager_GetSession_Expired(t *testing.T) {
	st := setupTestStore(t)
	defer st.Close()

	sm := NewSessionManager(st, 0)
	ctx := context.Background()

	sess := &model.PanelSession{
		ID:         "sess_expired",
		CreatedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt:  time.Now().Add(-1 * time.Hour),
		LastSeenAt: time.Now().Add(-2 * time.Hour),
	}
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	retrieved, err := sm.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if retrieved != nil {
		t.Error("expected nil session for expired session")
	}
	if raw, _ := st.GetSession(ctx, sess.ID); raw != nil {
		t.Error("expired session should be deleted on access")
	}
}

func TestSessionManager_DeleteSession(t *testing.T) {
	st := setupTestStore(t)
	defer st.Close()

	sm := NewSessionManager(st, 0)
	ctx := context.Background()

	sess, err := sm.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := st.SetPreference(ctx, sess.ID, model.PrefTheme, "neon"); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}

	if err := sm.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	retrieved, err := sm.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if retrieved != nil {
		t.Error("expected nil session after deletion")
	}
	if _, ok, _ := st.GetPreference(ctx, sess.ID, model.PrefTheme); ok {
		t.Error("preferences should be deleted with the session")
	}
}

func TestSessionManager_Ensure(t *testing.T) {
	st := setupTestStore(t)
	defer st.Close()

	sm := NewSessionManager(st, 0)

	// First request: no cookie, a session is created and the cookie set.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, created, err := sm.Ensure(w, req, true)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !created {
		t.Error("expected a new session")
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != sess.ID || !cookies[0].Secure {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}

	// Second request carries the cookie and reuses the session.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.ID})
	again, created, err := sm.Ensure(w, req, true)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if created || again.ID != sess.ID {
		t.Errorf("expected reuse of %q, got %q (created=%v)", sess.ID, again.ID, created)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("no cookie should be set for an existing session")
	}

	// A stale cookie gets a fresh session.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess_gone"})
	fresh, created, err := sm.Ensure(w, req, false)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !created || fresh.ID == "sess_gone" {
		t.Errorf("expected a replacement session, got %q", fresh.ID)
	}
}

func TestSessionManager_CleanupExpiredSessions(t *testing.T) {
	st := setupTestStore(t)
	defer st.Close()

	sm := NewSessionManager(st, time.Hour)
	ctx := context.Background()

	live, err := sm.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	old := &model.PanelSession{ID: "sess_old", CreatedAt: time.Now().Add(-3 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour)}
	if err := st.CreateSession(ctx, old); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	ids, err := sm.CleanupExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredSessions failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "sess_old" {
		t.Errorf("expected [sess_old], got %v", ids)
	}
	if s, _ := sm.GetSession(ctx, live.ID); s == nil {
		t.Error("live session should survive cleanup")
	}
}

func TestSessionManager_GetSessionFromRequest_NoCookie(t *testing.T) {
	st := setupTestStore(t)
	defer st.Close()

	sm := NewSessionManager(st, 0)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	retrieved, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("GetSessionFromRequest failed: %v", err)
	}
	if retrieved != nil {
		t.Error("expected nil session when no cookie")
	}
}

func TestSetSessionCookie(t *testing.T) {
	sess := &model.PanelSession{
		ID:        "sess_test123",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	w := httptest.NewRecorder()
	SetSessionCookie(w, sess, false)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}

	cookie := cookies[0]
	if cookie.Name != SessionCookieName {
		t.Errorf("expected cookie name %q, got %q", SessionCookieName, cookie.Name)
	}
	if cookie.Value != sess.ID {
		t.Errorf("expected cookie value %q, got %q", sess.ID, cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("expected HttpOnly to be true")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected SameSite Lax, got %v", cookie.SameSite)
	}
}

func TestClearSessionCookie(t *testing.T) {
	w := httptest.NewRecorder()
	ClearSessionCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].Name != SessionCookieName {
		t.Errorf("expected cookie name %q, got %q", SessionCookieName, cookies[0].Name)
	}
	if cookies[0].MaxAge != -1 {
		t.Errorf("expected MaxAge -1, got %d", cookies[0].MaxAge)
	}
}

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	return st
}
