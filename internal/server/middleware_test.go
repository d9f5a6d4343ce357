package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/me/webpanel/internal/logging"
	"github.com/me/webpanel/internal/ui"
)

func TestLoggingMiddleware_TagsPanelSession(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter(slog.LevelDebug, "json", &buf)

	h := loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ui.SessionCookieName, Value: "sess_0123456789abcdef0123"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if line["session"] != "sess_01234567" {
		t.Errorf("session = %v, want sess_01234567", line["session"])
	}
	if line["bytes"] != float64(5) {
		t.Errorf("bytes = %v, want 5", line["bytes"])
	}
	if line["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", line["level"])
	}
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/api/v1/health", http.StatusOK, "DEBUG"},
		{"/metrics", http.StatusOK, "DEBUG"},
		{"/", http.StatusBadGateway, "WARN"},
		{"/api/v1/state", http.StatusOK, "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.NewLoggerWithWriter(slog.LevelDebug, "json", &buf)
			h := loggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("log line is not JSON: %v", err)
			}
			if line["level"] != tt.want {
				t.Errorf("level = %v, want %s", line["level"], tt.want)
			}
			if _, ok := line["session"]; ok {
				t.Error("requests without a panel session should not carry one")
			}
		})
	}
}
