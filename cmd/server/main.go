package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/config"
	"github.com/me/webpanel/internal/logging"
	"github.com/me/webpanel/internal/metrics"
	"github.com/me/webpanel/internal/panel"
	"github.com/me/webpanel/internal/server"
	"github.com/me/webpanel/internal/store"
)

const sessionCleanupInterval = 10 * time.Minute

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	dbPath := flag.String("db", "", "SQLite database path")
	backendURL := flag.String("backend", "", "Bot backend URL, without /api")
	staticDir := flag.String("static", "", "Directory served under /static/")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Explicit flags win over the file and the environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "db":
			cfg.DBPath = *dbPath
		case "backend":
			cfg.BackendURL = *backendURL
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	m := metrics.New()

	backendCfg := backend.DefaultConfig()
	backendCfg.BaseURL = cfg.BackendURL
	backendCfg.Timeout = cfg.FetchTimeout
	backendCfg.MutationRate = cfg.MutationRate
	backendCfg.MutationBurst = cfg.MutationBurst
	client := backend.NewClient(backendCfg, m, logger)

	panelCfg := panel.DefaultConfig()
	panelCfg.FetchTimeout = cfg.FetchTimeout
	panelCfg.NotificationDuration = cfg.NotificationDuration
	states := panel.NewManager(client, st, panelCfg, m, logger)
	defer states.Close()

	opts := []server.Option{server.WithMetrics(m)}
	if *staticDir != "" {
		opts = append(opts, server.WithStaticDir(*staticDir))
	}
	srv := server.New(cfg, st, states, client, logger, opts...)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.StartSessionCleanup(ctx, sessionCleanupInterval)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "backend", cfg.BackendURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
