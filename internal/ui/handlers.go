package ui

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/internal/router"
	"github.com/me/webpanel/internal/store"
	"github.com/me/webpanel/pkg/model"
)

// UI handles the web user interface.
type UI struct {
	sessions   *SessionManager
	states     *panel.Manager
	client     *backend.Client
	logger     *slog.Logger
	secure     bool     // Use secure cookies (HTTPS)
	forward    []string // backend cookie names to relay; empty relays all
	renderWait time.Duration
}

// Config holds UI configuration.
type Config struct {
	Secure         bool
	ForwardCookies []string
	SessionTTL     time.Duration
	// RenderWait bounds how long a page waits for bootstrap and view data
	// before rendering whatever has settled.
	RenderWait time.Duration
}

// New creates a new UI handler.
func New(st store.Store, states *panel.Manager, client *backend.Client, logger *slog.Logger, cfg Config) *UI {
	if cfg.RenderWait <= 0 {
		cfg.RenderWait = 3 * time.Second
	}
	return &UI{
		sessions:   NewSessionManager(st, cfg.SessionTTL),
		states:     states,
		client:     client,
		logger:     logger.With("component", "ui"),
		secure:     cfg.Secure,
		forward:    cfg.ForwardCookies,
		renderWait: cfg.RenderWait,
	}
}

// Sessions exposes the session manager for the cleanup loop and the JSON API.
func (ui *UI) Sessions() *SessionManager {
	return ui.sessions
}

// HandleLogin hands the browser to the backend's OAuth flow. The session's
// state is dropped so the first page after the round trip bootstraps anew.
func (ui *UI) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if sess, _ := ui.sessions.GetSessionFromRequest(r); sess != nil {
		ui.states.Drop(sess.ID)
	}
	http.Redirect(w, r, ui.client.LoginURL(), http.StatusFound)
}

// HandleLogout drops the local session and state, then lets the backend end
// its own session.
func (ui *UI) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, _ := ui.sessions.GetSessionFromRequest(r); sess != nil {
		ui.states.Drop(sess.ID)
		if err := ui.sessions.DeleteSession(r.Context(), sess.ID); err != nil {
			ui.logger.Warn("delete session failed", "session", sess.ID, "error", err)
		}
		ui.logger.Info("panel session ended", "session", sess.ID)
	}
	ClearSessionCookie(w)
	http.Redirect(w, r, ui.client.LogoutURL(), http.StatusFound)
}

// HandleIndex renders the current view. Nothing gated is rendered until the
// bootstrap fetches have settled.
func (ui *UI) HandleIndex(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())

	waitCtx, cancel := context.WithTimeout(r.Context(), ui.renderWait)
	st.WaitBootstrap(waitCtx)
	cancel()

	prefs := st.Preferences(r.Context())
	if st.IsLoading() {
		ui.render(w, "loading", map[string]any{
			"Title": "Loading - WebPanel",
			"Theme": prefs.Theme,
		})
		return
	}

	nav := st.Navigation()
	view := router.Resolve(nav.CurrentView, st)
	data := ui.pageData(st, prefs, view)
	data["Resources"] = loadView(r.Context(), st, view.Key, ui.renderWait)

	if vd, ok := viewTable[view.Key]; ok {
		data["NeedsServer"] = vd.NeedsServer && nav.SelectedServer == nil
		if vd.ConfigRequires != "" && st.Has(vd.ConfigRequires) {
			data["CanConfig"] = true
		}
	}
	ui.render(w, templateFor(view.Key), data)
}

// pageData collects what the layout needs on every page.
func (ui *UI) pageData(st *panel.State, prefs model.Preferences, view router.View) map[string]any {
	nav := st.Navigation()
	authenticated := st.IsAuthenticated()
	return map[string]any{
		"Title":            view.Label + " - WebPanel",
		"Theme":            prefs.Theme,
		"Themes":           model.Themes,
		"SidebarCollapsed": prefs.SidebarCollapsed,
		"View":             view,
		"Menu":             router.Menu(st, authenticated, nav.CurrentView),
		"Server":           nav.SelectedServer,
		"Servers":          knownServers(st),
		"Session":          st.Session(),
		"Authenticated":    authenticated,
		"Profile":          st.Profile(),
		"Role":             st.RoleDisplay(),
		"Badges":           st.Badges(),
		"Stats":            st.Stats(),
		"BootstrapErrors":  st.BootstrapErrors(),
		"Notifications":    st.Notifications(),
	}
}

// templateFor maps a view to its content template.
func templateFor(view string) string {
	switch view {
	case router.Economy, router.Moderation, router.Music, router.Gaming, router.Analytics:
		return "domain"
	default:
		return view
	}
}

// HandleNavigate switches the current view, optionally selecting a server.
// The key is not validated here; rendering falls back for unknown views.
func (ui *UI) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	var server *model.ServerRef
	if id := strings.TrimSpace(r.URL.Query().Get("server")); id != "" {
		server = serverRef(st, id)
	}
	st.NavigateTo(chi.URLParam(r, "view"), server)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleSelectServer selects a server and stays on the current view.
func (ui *UI) HandleSelectServer(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	defer http.Redirect(w, r, "/", http.StatusSeeOther)

	id := strings.TrimSpace(r.PostFormValue("server_id"))
	if id == "" {
		st.Notify(msgSelectServer, model.NotifyWarning)
		return
	}
	ref := serverRef(st, id)
	st.NavigateTo(st.Navigation().CurrentView, ref)
	st.Notify("Server selected: "+ref.Name, model.NotifyInfo)
}

// HandleDismissNotification removes a notification. Unknown ids are ignored.
func (ui *UI) HandleDismissNotification(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	if id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64); err == nil {
		st.RemoveNotification(id)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleTheme stores the chosen theme.
func (ui *UI) HandleTheme(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	if err := st.SetTheme(r.Context(), r.PostFormValue("theme")); err != nil {
		ui.logger.Warn("set theme failed", "error", err)
		st.Notify("Could not change theme", model.NotifyError)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleSidebar toggles the collapsed sidebar.
func (ui *UI) HandleSidebar(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	if _, err := st.ToggleSidebar(r.Context()); err != nil {
		ui.logger.Warn("toggle sidebar failed", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (ui *UI) render(w http.ResponseWriter, template string, data map[string]any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var buf bytes.Buffer
	if err := renderTemplate(&buf, template, data); err != nil {
		ui.logger.Error("template render failed", "template", template, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
