package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/config"
	"github.com/me/webpanel/internal/metrics"
	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/internal/store"
	"github.com/me/webpanel/internal/ui"
)

// Server is the WebPanel HTTP server: the HTML panel, its JSON API and the
// operational endpoints.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	states    *panel.Manager
	client    *backend.Client
	metrics   *metrics.Metrics // optional
	staticDir string           // optional; served under /static/
	ui        *ui.UI
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithMetrics instruments requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithStaticDir serves the files in dir under /static/.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, states *panel.Manager, client *backend.Client, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		states:    states,
		client:    client,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ui = ui.New(st, states, client, logger, ui.Config{
		Secure:         cfg.SecureCookies,
		ForwardCookies: cfg.ForwardCookies,
		SessionTTL:     cfg.SessionTTL,
		RenderWait:     cfg.BootstrapTimeout,
	})

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartSessionCleanup purges expired panel sessions every interval until ctx
// is done, dropping the in-memory state of each purged session.
func (s *Server) StartSessionCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupSessions(ctx)
			}
		}
	}()
}

func (s *Server) cleanupSessions(ctx context.Context) int {
	ids, err := s.ui.Sessions().CleanupExpiredSessions(ctx)
	if err != nil {
		s.logger.Warn("session cleanup failed", "error", err)
		return 0
	}
	for _, id := range ids {
		s.states.Drop(id)
	}
	if len(ids) > 0 {
		s.logger.Info("expired panel sessions purged", "count", len(ids))
	}
	return len(ids)
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
		r.Handle("/metrics", s.metrics.Handler())
	}

	if s.staticDir != "" {
		r.Handle("/static/*", ui.StaticHandler(s.staticDir))
	}

	// UI routes (HTML)
	s.ui.RegisterRoutes(r)

	// API routes (JSON)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		// Session-scoped panel state, shared with the HTML panel.
		r.Group(func(r chi.Router) {
			r.Use(s.ui.SessionMiddleware)
			r.Use(s.ui.StateMiddleware)

			r.Get("/state", s.handleGetState)
			r.Post("/navigate", s.handleNavigate)
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.handleListNotifications)
				r.Post("/", s.handleAddNotification)
				r.Delete("/{id}", s.handleRemoveNotification)
			})
			r.Get("/permissions/check", s.handleCheckPermission)
		})
	})
}
