package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/config"
	"github.com/me/webpanel/internal/logging"
	"github.com/me/webpanel/internal/metrics"
	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/internal/store"
	"github.com/me/webpanel/internal/ui"
	"github.com/me/webpanel/pkg/model"
)

// botHandler serves the bootstrap endpoints for a user at the given level.
// A nil perms handler answers with that level.
func botHandler(level int, perms http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/user":
			fmt.Fprint(w, `{"authenticated":true,"user":{"id":"u1","username":"neo"}}`)
		case "/api/stats":
			fmt.Fprint(w, `{}`)
		case "/api/user/profile":
			fmt.Fprint(w, `{"id":"u1","display_name":"Neo","created_at":"2020-01-01T00:00:00Z"}`)
		case "/api/user/permissions":
			if perms != nil {
				perms(w, r)
				return
			}
			fmt.Fprintf(w, `{"numeric_level":%d}`, level)
		default:
			http.NotFound(w, r)
		}
	})
}

type testEnv struct {
	srv     *Server
	store   *store.SQLiteStore
	states  *panel.Manager
	cookies []*http.Cookie
}

func testServer(t *testing.T, bot http.Handler) *testEnv {
	t.Helper()
	if bot == nil {
		bot = botHandler(650, nil)
	}
	backendSrv := httptest.NewServer(bot)
	t.Cleanup(backendSrv.Close)

	logger := logging.Discard()
	cfg := config.DefaultServerConfig()
	cfg.BackendURL = backendSrv.URL
	cfg.BootstrapTimeout = 2 * time.Second

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	bcfg := backend.DefaultConfig()
	bcfg.BaseURL = cfg.BackendURL
	client := backend.NewClient(bcfg, m, logger)
	states := panel.NewManager(client, st, panel.DefaultConfig(), m, logger)
	t.Cleanup(states.Close)

	return &testEnv{
		srv:    New(cfg, st, states, client, logger, WithMetrics(m)),
		store:  st,
		states: states,
	}
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Error     *model.APIError `json:"error"`
}

// do sends a request with the session cookie obtained so far.
func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			raw, _ := json.Marshal(b)
			rd = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range e.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		e.cookies = set
	}

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: invalid JSON: %v", method, path, err)
		}
	}
	return w, env
}

func TestDiscovery(t *testing.T) {
	e := testServer(t, nil)
	w, env := e.do(t, http.MethodGet, "/api/v1/", nil)
	if w.Code != http.StatusOK || env.Status != "ok" {
		t.Fatalf("status = %d/%q", w.Code, env.Status)
	}

	var data discoveryResponse
	json.Unmarshal(env.Data, &data)
	if data.Name != "WebPanel API" {
		t.Errorf("name = %q", data.Name)
	}
	found := false
	for _, ep := range data.Endpoints {
		if ep.Path == "/api/v1/state" {
			found = true
		}
	}
	if !found {
		t.Error("state endpoint not listed")
	}
}

func TestHealth(t *testing.T) {
	e := testServer(t, nil)
	_, env := e.do(t, http.MethodGet, "/api/v1/health", nil)

	var data healthResponse
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", data.Status)
	}
	if data.PanelStates != 0 {
		t.Errorf("panel_states = %d, want 0 (health needs no session)", data.PanelStates)
	}
}

func TestState_WaitsForBootstrap(t *testing.T) {
	e := testServer(t, nil)
	w, env := e.do(t, http.MethodGet, "/api/v1/state?wait=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var data stateResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Loading {
		t.Fatal("expected bootstrap to have settled")
	}
	if data.Role != "Administrator" || data.Session.Username() != "neo" {
		t.Errorf("role = %q, user = %q", data.Role, data.Session.Username())
	}
	keys := map[string]bool{}
	for _, m := range data.Menu {
		keys[m.Key] = true
	}
	if !keys["analytics"] || keys["founder"] || keys["creator"] {
		t.Errorf("menu = %+v", data.Menu)
	}
	if data.Preferences.Theme != model.DefaultTheme {
		t.Errorf("theme = %q", data.Preferences.Theme)
	}
	if len(e.cookies) == 0 || e.cookies[0].Name != ui.SessionCookieName {
		t.Error("expected a panel session cookie")
	}
}

func TestState_LoadingHidesPermissionData(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	e := testServer(t, botHandler(1000, func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"numeric_level":1000}`)
	}))

	_, env := e.do(t, http.MethodGet, "/api/v1/state", nil)
	var data stateResponse
	json.Unmarshal(env.Data, &data)
	if !data.Loading {
		t.Fatal("expected loading while permissions are in flight")
	}
	if len(data.Badges) != 0 || len(data.Menu) != 0 || data.Role != "" {
		t.Errorf("permission-derived data leaked while loading: %+v", data)
	}
	if data.ResolvedView != panel.DefaultView {
		t.Errorf("resolved_view = %q", data.ResolvedView)
	}
}

func TestNavigate(t *testing.T) {
	e := testServer(t, nil)
	e.do(t, http.MethodGet, "/api/v1/state?wait=true", nil)

	w, env := e.do(t, http.MethodPost, "/api/v1/navigate", map[string]any{
		"view":   "creator",
		"server": map[string]string{"id": "42", "name": "Arsenal"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var data struct {
		Navigation   model.NavigationState `json:"navigation"`
		ResolvedView string                `json:"resolved_view"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Navigation.CurrentView != "creator" || data.Navigation.SelectedServerID() != "42" {
		t.Errorf("navigation = %+v", data.Navigation)
	}
	if data.ResolvedView != "dashboard" {
		t.Errorf("resolved_view = %q, want dashboard at level 650", data.ResolvedView)
	}
}

func TestNavigate_Validation(t *testing.T) {
	e := testServer(t, nil)

	w, env := e.do(t, http.MethodPost, "/api/v1/navigate", "{not json")
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Errorf("invalid JSON: status = %d, error = %+v", w.Code, env.Error)
	}

	w, _ = e.do(t, http.MethodPost, "/api/v1/navigate", map[string]string{"view": " "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty view: status = %d", w.Code)
	}
}

func TestNotifications(t *testing.T) {
	e := testServer(t, nil)

	w, env := e.do(t, http.MethodPost, "/api/v1/notifications", map[string]any{
		"message": "saved", "type": "success", "duration_ms": 0,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	json.Unmarshal(env.Data, &created)
	if created.ID == 0 {
		t.Fatal("expected an id")
	}

	_, env = e.do(t, http.MethodGet, "/api/v1/notifications/", nil)
	var list []model.Notification
	json.Unmarshal(env.Data, &list)
	if len(list) != 1 || list[0].Type != model.NotifySuccess {
		t.Fatalf("notifications = %+v", list)
	}

	path := fmt.Sprintf("/api/v1/notifications/%d", created.ID)
	for i := 0; i < 2; i++ {
		if w, _ := e.do(t, http.MethodDelete, path, nil); w.Code != http.StatusOK {
			t.Errorf("delete #%d: status = %d", i+1, w.Code)
		}
	}
	_, env = e.do(t, http.MethodGet, "/api/v1/notifications/", nil)
	list = nil
	json.Unmarshal(env.Data, &list)
	if len(list) != 0 {
		t.Errorf("notifications after delete = %+v", list)
	}
}

func TestNotifications_Validation(t *testing.T) {
	e := testServer(t, nil)

	w, env := e.do(t, http.MethodPost, "/api/v1/notifications", map[string]any{
		"message": "", "type": "loud", "duration_ms": -5,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if env.Error == nil || len(env.Error.Details) != 3 {
		t.Errorf("error = %+v", env.Error)
	}

	if w, _ := e.do(t, http.MethodDelete, "/api/v1/notifications/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", w.Code)
	}
}

func TestPermissionCheck(t *testing.T) {
	e := testServer(t, nil)

	check := func(capability string) permissionCheckResponse {
		t.Helper()
		w, env := e.do(t, http.MethodGet, "/api/v1/permissions/check?capability="+capability, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", capability, w.Code)
		}
		var resp permissionCheckResponse
		json.Unmarshal(env.Data, &resp)
		return resp
	}

	if r := check("admin"); !r.Allowed || r.Threshold != 600 || r.Level == nil || *r.Level != 650 {
		t.Errorf("admin = %+v", r)
	}
	if r := check("founder"); r.Allowed {
		t.Errorf("founder = %+v", r)
	}
	if w, _ := e.do(t, http.MethodGet, "/api/v1/permissions/check?capability=overlord", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown capability: status = %d", w.Code)
	}
}

func TestPermissionCheck_PermissionsUnavailable(t *testing.T) {
	e := testServer(t, botHandler(0, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	for _, c := range []string{"member", "moderator", "admin", "founder", "creator"} {
		_, env := e.do(t, http.MethodGet, "/api/v1/permissions/check?capability="+c, nil)
		var resp permissionCheckResponse
		json.Unmarshal(env.Data, &resp)
		if resp.Allowed || resp.Level != nil {
			t.Errorf("%s = %+v, want denied with no level", c, resp)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := testServer(t, nil)
	e.do(t, http.MethodGet, "/api/v1/state?wait=true", nil)

	w, _ := e.do(t, http.MethodGet, "/metrics", nil)
	body := w.Body.String()
	for _, want := range []string{"webpanel_http_requests_total", "webpanel_backend_requests_total", "webpanel_panel_states 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestCleanupSessions(t *testing.T) {
	e := testServer(t, nil)
	ctx := context.Background()

	expired := &model.PanelSession{
		ID:        "sess_old",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := e.store.CreateSession(ctx, expired); err != nil {
		t.Fatal(err)
	}
	e.states.Get(expired.ID)
	e.do(t, http.MethodGet, "/api/v1/state", nil) // a live session

	if n := e.srv.cleanupSessions(ctx); n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, ok := e.states.Lookup(expired.ID); ok {
		t.Error("state of purged session still held")
	}
	if e.states.Len() != 1 {
		t.Errorf("states = %d, want 1", e.states.Len())
	}
}

func TestResponseEnvelope_HasRequestID(t *testing.T) {
	e := testServer(t, nil)
	_, env := e.do(t, http.MethodGet, "/api/v1/health", nil)
	if !strings.HasPrefix(env.RequestID, "req_") {
		t.Errorf("request_id = %q, want req_ prefix", env.RequestID)
	}
	if env.Timestamp == "" {
		t.Error("timestamp is empty")
	}
}

func TestResponseEnvelope_XRequestIDHeader(t *testing.T) {
	e := testServer(t, nil)
	w, _ := e.do(t, http.MethodGet, "/api/v1/health", nil)

	xReqID := w.Header().Get("X-Request-ID")
	if !strings.HasPrefix(xReqID, "req_") {
		t.Errorf("X-Request-ID header = %q, want req_ prefix", xReqID)
	}
}
