// Package panel holds the per-session application state: bootstrap data,
// navigation, notifications, display preferences and per-view resources.
package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/fetch"
	"github.com/me/webpanel/internal/permission"
	"github.com/me/webpanel/pkg/model"
)

// Bootstrap endpoints. They gate IsLoading.
const (
	EndpointAuth        = "/auth/user"
	EndpointStats       = "/stats"
	EndpointProfile     = "/user/profile"
	EndpointPermissions = "/user/permissions"
)

// DefaultView is the initial view and the router's fallback.
const DefaultView = "dashboard"

// DefaultNotificationDuration is used by Notify.
const DefaultNotificationDuration = 5 * time.Second

// PreferenceStore persists per-session display preferences.
type PreferenceStore interface {
	GetPreference(ctx context.Context, sessionID, key string) (string, bool, error)
	SetPreference(ctx context.Context, sessionID, key, value string) error
}

// Config tunes a State.
type Config struct {
	FetchTimeout         time.Duration // per backend request (0 = none)
	NotificationDuration time.Duration // default for Notify
	Now                  func() time.Time
}

// DefaultConfig returns the settings used by the server.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:         15 * time.Second,
		NotificationDuration: DefaultNotificationDuration,
		Now:                  time.Now,
	}
}

// State is one browser session's application state. Handlers for the same
// session may run concurrently, so every field behind mu is written only
// through State's methods.
type State struct {
	id     string
	client *backend.Client
	prefs  PreferenceStore
	cfg    Config
	logger *slog.Logger

	auth    *fetch.Hook
	stats   *fetch.Hook
	profile *fetch.Hook
	perms   *fetch.Hook

	lastNotificationID atomic.Int64

	mu            sync.RWMutex
	conn          *backend.Conn
	creds         string
	nav           model.NavigationState
	notifications []model.Notification
	timers        map[int64]*time.Timer
	resources     map[string]*fetch.Hook
	bootstrapped  bool
	closed        bool
}

// NewState creates the state for one panel session. prefs may be nil, in
// which case preferences are always the defaults.
func NewState(id string, client *backend.Client, prefs PreferenceStore, cfg Config, logger *slog.Logger) *State {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NotificationDuration < 0 {
		cfg.NotificationDuration = DefaultNotificationDuration
	}
	s := &State{
		id:        id,
		client:    client,
		prefs:     prefs,
		cfg:       cfg,
		logger:    logger.With("component", "panel", "session", id),
		conn:      client.As(nil),
		nav:       model.NavigationState{CurrentView: DefaultView},
		timers:    make(map[int64]*time.Timer),
		resources: make(map[string]*fetch.Hook),
	}
	s.auth = s.newHook()
	s.stats = s.newHook()
	s.profile = s.newHook()
	s.perms = s.newHook()
	return s
}

// ID returns the panel session ID this state belongs to.
func (s *State) ID() string { return s.id }

// getter routes requests through whatever credentials are current.
func (s *State) getter() fetch.Getter {
	return fetch.GetterFunc(func(ctx context.Context, path string) (json.RawMessage, error) {
		return s.Conn().Get(ctx, path)
	})
}

func (s *State) newHook() *fetch.Hook {
	return fetch.New(s.getter(), s.cfg.FetchTimeout, s.logger)
}

// SetCredentials replaces the backend cookies forwarded on behalf of the
// user. It reports whether they differ from the previous set, which happens
// when the browser logs in or out of the backend.
func (s *State) SetCredentials(cookies []*http.Cookie) bool {
	key := credentialKey(cookies)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = s.client.As(cookies)
	changed := key != s.creds
	s.creds = key
	return changed
}

// credentialKey is an order-independent fingerprint of a cookie set.
func credentialKey(cookies []*http.Cookie) string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}

// Conn returns a backend connection bound to the current credentials.
func (s *State) Conn() *backend.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// --- Bootstrap ---

// Bootstrap starts the four bootstrap fetches concurrently. Later calls are
// no-ops; use Refresh to re-run them.
func (s *State) Bootstrap(ctx context.Context) {
	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return
	}
	s.bootstrapped = true
	s.mu.Unlock()

	s.logger.Debug("bootstrap")
	s.auth.Use(ctx, EndpointAuth)
	s.stats.Use(ctx, EndpointStats)
	s.profile.Use(ctx, EndpointProfile)
	s.perms.Use(ctx, EndpointPermissions)
}

// Refresh re-runs the bootstrap fetches and every bound resource, e.g. after
// the backend session changed.
func (s *State) Refresh(ctx context.Context) {
	s.mu.RLock()
	started := s.bootstrapped
	hooks := make([]*fetch.Hook, 0, len(s.resources))
	for _, h := range s.resources {
		hooks = append(hooks, h)
	}
	s.mu.RUnlock()
	if !started {
		s.Bootstrap(ctx)
		return
	}
	s.logger.Debug("refresh")
	for _, h := range append(s.bootstrapHooks(), hooks...) {
		h.Refetch(ctx)
	}
}

// WaitBootstrap blocks until every bootstrap fetch has settled or ctx ends.
// Fetch failures are not errors here; they show up in the decoded values.
func (s *State) WaitBootstrap(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range s.bootstrapHooks() {
		h := h
		g.Go(func() error {
			_, err := h.Wait(gctx)
			return err
		})
	}
	return g.Wait()
}

// IsLoading is true while any bootstrap fetch is in flight. Gated content
// must not render while it is true.
func (s *State) IsLoading() bool {
	for _, h := range s.bootstrapHooks() {
		if h.Snapshot().Loading {
			return true
		}
	}
	return false
}

func (s *State) bootstrapHooks() []*fetch.Hook {
	return []*fetch.Hook{s.auth, s.stats, s.profile, s.perms}
}

// --- Bootstrap data ---

// Session reports who the backend thinks is logged in. Any fetch failure,
// including an expired token, reads as unauthenticated.
func (s *State) Session() *model.Session {
	var sess model.Session
	if err := s.auth.Snapshot().Decode(&sess); err != nil {
		return &model.Session{}
	}
	return &sess
}

// IsAuthenticated is shorthand for Session().Authenticated.
func (s *State) IsAuthenticated() bool {
	return s.Session().Authenticated
}

// Stats returns the opaque stats object, or nil.
func (s *State) Stats() map[string]any {
	var stats map[string]any
	if err := s.stats.Snapshot().Decode(&stats); err != nil {
		return nil
	}
	return stats
}

// Profile returns the user's profile, or nil if it could not be loaded.
func (s *State) Profile() *model.Profile {
	var p model.Profile
	if err := s.profile.Snapshot().Decode(&p); err != nil {
		return nil
	}
	return &p
}

// Permissions returns the user's permissions, or nil if they could not be loaded.
func (s *State) Permissions() *model.Permissions {
	var p model.Permissions
	if err := s.perms.Snapshot().Decode(&p); err != nil {
		return nil
	}
	return &p
}

// BootstrapErrors lists the failed bootstrap fetches by endpoint.
func (s *State) BootstrapErrors() map[string]string {
	errs := make(map[string]string)
	for _, h := range s.bootstrapHooks() {
		if snap := h.Snapshot(); snap.Error != "" {
			errs[snap.Endpoint] = snap.Error
		}
	}
	return errs
}

// --- Capabilities ---

// HasPermission checks a capability by name. Unknown names and missing
// permissions are false.
func (s *State) HasPermission(name string) bool {
	c, ok := permission.ParseCapability(name)
	if !ok {
		return false
	}
	return s.Has(c)
}

// Has checks a typed capability.
func (s *State) Has(c permission.Capability) bool {
	return permission.HasCapability(s.Permissions(), c)
}

func (s *State) IsCreator() bool   { return s.Has(permission.Creator) }
func (s *State) IsFounder() bool   { return s.Has(permission.Founder) }
func (s *State) IsAdmin() bool     { return s.Has(permission.Admin) }
func (s *State) IsModerator() bool { return s.Has(permission.Moderator) }

// Badges recomputes the user's badges. They are never cached.
func (s *State) Badges() []model.Badge {
	return permission.ComputeBadges(s.Permissions(), s.Profile(), s.cfg.Now())
}

// RoleDisplay names the user's highest tier from the threshold table.
func (s *State) RoleDisplay() string {
	p := s.Permissions()
	if p == nil {
		return permission.RoleDisplay(0)
	}
	return permission.RoleDisplay(p.NumericLevel)
}

// --- Navigation ---

// NavigateTo sets the current view and, when server is non-nil, the selected
// server. view is not validated; the router falls back for unknown keys.
func (s *State) NavigateTo(view string, server *model.ServerRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav.CurrentView = view
	if server != nil {
		srv := *server
		s.nav.SelectedServer = &srv
	}
	s.logger.Debug("navigate", "view", view, "server", s.nav.SelectedServerID())
}

// Navigation returns a copy of the navigation state.
func (s *State) Navigation() model.NavigationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nav := s.nav
	if nav.SelectedServer != nil {
		srv := *nav.SelectedServer
		nav.SelectedServer = &srv
	}
	return nav
}

// --- Notifications ---

// nextNotificationID returns a millisecond timestamp, bumped so that ids stay
// strictly increasing under rapid calls.
func (s *State) nextNotificationID() int64 {
	for {
		prev := s.lastNotificationID.Load()
		next := s.cfg.Now().UnixMilli()
		if next <= prev {
			next = prev + 1
		}
		if s.lastNotificationID.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// AddNotification appends a notification and returns its id. A positive
// duration schedules its removal; zero keeps it until dismissed.
func (s *State) AddNotification(message string, typ model.NotificationType, duration time.Duration) int64 {
	if !typ.IsValid() {
		typ = model.NotifyInfo
	}
	id := s.nextNotificationID()
	n := model.Notification{ID: id, Message: message, Type: typ, CreatedAt: s.cfg.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return id
	}
	s.notifications = append(s.notifications, n)
	if duration > 0 {
		s.timers[id] = time.AfterFunc(duration, func() { s.RemoveNotification(id) })
	}
	return id
}

// Notify adds a notification with the default duration.
func (s *State) Notify(message string, typ model.NotificationType) int64 {
	return s.AddNotification(message, typ, s.cfg.NotificationDuration)
}

// RemoveNotification removes id and cancels its timer. Removing an unknown or
// already removed id is a no-op.
func (s *State) RemoveNotification(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i:i], s.notifications[i+1:]...)
			return
		}
	}
}

// Notifications returns a copy of the current notifications, oldest first.
func (s *State) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// PendingTimers reports how many auto-dismiss timers are armed.
func (s *State) PendingTimers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.timers)
}

// --- Per-view resources ---

// Resource returns the named hook, creating it on first use.
func (s *State) Resource(key string) *fetch.Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.resources[key]
	if !ok {
		h = s.newHook()
		s.resources[key] = h
	}
	return h
}

// Use binds the named resource to endpoint and deps and returns its snapshot.
func (s *State) Use(ctx context.Context, key, endpoint string, deps ...any) fetch.Snapshot {
	return s.Resource(key).Use(ctx, endpoint, deps...)
}

// Invalidate refetches the named resources. Unknown keys are ignored.
func (s *State) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		s.mu.RLock()
		h, ok := s.resources[key]
		s.mu.RUnlock()
		if ok {
			h.Refetch(ctx)
		}
	}
}

// --- Preferences ---

// Preferences reads the stored preferences. Missing, unreadable or invalid
// values fall back to defaults.
func (s *State) Preferences(ctx context.Context) model.Preferences {
	prefs := model.DefaultPreferences()
	if s.prefs == nil {
		return prefs
	}

	if v, ok, err := s.prefs.GetPreference(ctx, s.id, model.PrefTheme); err != nil {
		s.logger.Warn("read preference failed", "key", model.PrefTheme, "error", err)
	} else if ok && model.IsKnownTheme(v) {
		prefs.Theme = v
	}

	if v, ok, err := s.prefs.GetPreference(ctx, s.id, model.PrefSidebarCollapsed); err != nil {
		s.logger.Warn("read preference failed", "key", model.PrefSidebarCollapsed, "error", err)
	} else if ok {
		if b, err := strconv.ParseBool(v); err == nil {
			prefs.SidebarCollapsed = b
		}
	}
	return prefs
}

// SetTheme stores the theme. Unknown themes are rejected.
func (s *State) SetTheme(ctx context.Context, theme string) error {
	if !model.IsKnownTheme(theme) {
		return fmt.Errorf("unknown theme %q", theme)
	}
	if s.prefs == nil {
		return nil
	}
	return s.prefs.SetPreference(ctx, s.id, model.PrefTheme, theme)
}

// SetSidebarCollapsed stores the sidebar flag.
func (s *State) SetSidebarCollapsed(ctx context.Context, collapsed bool) error {
	if s.prefs == nil {
		return nil
	}
	return s.prefs.SetPreference(ctx, s.id, model.PrefSidebarCollapsed, strconv.FormatBool(collapsed))
}

// ToggleSidebar flips the sidebar flag and returns the new value.
func (s *State) ToggleSidebar(ctx context.Context) (bool, error) {
	collapsed := !s.Preferences(ctx).SidebarCollapsed
	return collapsed, s.SetSidebarCollapsed(ctx, collapsed)
}

// Close stops every pending notification timer. The state must not be used
// afterwards.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.closed = true
}
