package cli

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/webpanel/internal/backend"
	"github.com/me/webpanel/internal/logging"
)

var (
	flagBackend   string
	flagCookies   []string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *backend.Client
)

// defaultBackend returns the default backend URL, checking WEBPANEL_BACKEND_URL first.
func defaultBackend() string {
	if s := os.Getenv("WEBPANEL_BACKEND_URL"); s != "" {
		return s
	}
	return "http://localhost:5000"
}

// NewRootCmd creates the root cobra command for the webpanelctl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "webpanelctl",
		Short: "Inspect a Discord bot backend the way the WebPanel sees it",
		Long:  "webpanelctl resolves sessions, permissions, badges and views against a bot backend.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
			cfg := backend.DefaultConfig()
			cfg.BaseURL = flagBackend
			cfg.MutationRate = 0
			client = backend.NewClient(cfg, nil, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagBackend, "backend", defaultBackend(), "Bot backend URL (or WEBPANEL_BACKEND_URL env)")
	root.PersistentFlags().StringSliceVar(&flagCookies, "cookie", nil, "Backend session cookie as name=value (repeatable)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newWhoamiCmd(),
		newBadgesCmd(),
		newViewsCmd(),
		newGetCmd(),
	)

	return root
}

// credentials parses the --cookie flags. Entries without '=' are skipped.
func credentials() []*http.Cookie {
	var cookies []*http.Cookie
	for _, raw := range flagCookies {
		name, value, ok := strings.Cut(strings.TrimSpace(raw), "=")
		if !ok || name == "" {
			logger.Warn("ignoring malformed cookie", "cookie", raw)
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	return cookies
}
