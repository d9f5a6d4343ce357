package panel

import (
	"log/slog"
	"sync"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/metrics"
)

// Manager owns one State per panel session. It replaces any process-wide
// global: handlers receive the Manager and ask it for the caller's State.
type Manager struct {
	client  *backend.Client
	prefs   PreferenceStore
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	states map[string]*State
}

// NewManager creates an empty state registry.
func NewManager(client *backend.Client, prefs PreferenceStore, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		client:  client,
		prefs:   prefs,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		states:  make(map[string]*State),
	}
}

// Get returns the state for sessionID, creating it if absent.
func (m *Manager) Get(sessionID string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sessionID]
	if !ok {
		st = NewState(sessionID, m.client, m.prefs, m.cfg, m.logger)
		m.states[sessionID] = st
		m.metrics.SetPanelStates(len(m.states))
	}
	return st
}

// Lookup returns the state for sessionID without creating one.
func (m *Manager) Lookup(sessionID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sessionID]
	return st, ok
}

// Drop closes and forgets the state for sessionID. Unknown IDs are ignored.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	st, ok := m.states[sessionID]
	delete(m.states, sessionID)
	n := len(m.states)
	m.mu.Unlock()

	if ok {
		st.Close()
		m.metrics.SetPanelStates(n)
	}
}

// Len returns the number of live states.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Close drops every state.
func (m *Manager) Close() {
	m.mu.Lock()
	states := m.states
	m.states = make(map[string]*State)
	m.mu.Unlock()
	for _, st := range states {
		st.Close()
	}
	m.metrics.SetPanelStates(0)
}
