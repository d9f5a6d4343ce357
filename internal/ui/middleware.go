package ui

import (
	"context"
	"net/http"
	"slices"

	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/pkg/model"
)

// Context keys for session data.
type contextKey string

const (
	sessionContextKey contextKey = "session"
	stateContextKey   contextKey = "state"
)

// SessionFromContext retrieves the panel session from the request context.
func SessionFromContext(ctx context.Context) *model.PanelSession {
	sess, _ := ctx.Value(sessionContextKey).(*model.PanelSession)
	return sess
}

// StateFromContext retrieves the panel state from the request context.
func StateFromContext(ctx context.Context) *panel.State {
	st, _ := ctx.Value(stateContextKey).(*panel.State)
	return st
}

// WithState returns ctx carrying sess and st. Used by the JSON API, which
// shares the UI's session handling.
func WithState(ctx context.Context, sess *model.PanelSession, st *panel.State) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, sess)
	return context.WithValue(ctx, stateContextKey, st)
}

// SessionMiddleware ensures every request has a panel session, creating one
// lazily on first visit.
func (ui *UI) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, created, err := ui.sessions.Ensure(w, r, ui.secure)
		if err != nil {
			ui.logger.Error("session lookup failed", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if created {
			ui.logger.Debug("panel session created", "session", sess.ID)
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StateMiddleware resolves the session's panel state, refreshes the
// forwarded backend credentials and starts the bootstrap fetches on first
// use. A change of credentials re-runs them. Must be used after
// SessionMiddleware.
func (ui *UI) StateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess == nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		st := ui.states.Get(sess.ID)
		if st.SetCredentials(ui.backendCookies(r)) {
			ui.logger.Debug("backend credentials changed", "session", sess.ID)
			st.Refresh(r.Context())
		} else {
			st.Bootstrap(r.Context())
		}

		ctx := context.WithValue(r.Context(), stateContextKey, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// backendCookies picks the browser cookies relayed to the backend. The panel
// session cookie is never relayed.
func (ui *UI) backendCookies(r *http.Request) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range r.Cookies() {
		if c.Name == SessionCookieName {
			continue
		}
		if len(ui.forward) > 0 && !slices.Contains(ui.forward, c.Name) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}
