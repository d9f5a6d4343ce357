package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/me/webpanel/internal/ui"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// requestIDMiddleware generates a request_id and stores it in context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestID()
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionLogPrefix is how much of a panel session id is logged; the full id
// is a credential.
const sessionLogPrefix = len("sess_") + 8

// loggingMiddleware logs one line per request with the panel session it
// belongs to. Health and metrics scrapes are logged at DEBUG and server
// errors at WARN.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			switch {
			case sw.status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case r.URL.Path == "/metrics" || r.URL.Path == "/api/v1/health":
				level = slog.LevelDebug
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.written,
				"duration", time.Since(start).String(),
				"request_id", RequestIDFromContext(r.Context()),
			}
			if sess := sessionTag(r); sess != "" {
				attrs = append(attrs, "session", sess)
			}
			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// sessionTag returns a loggable prefix of the request's panel session id.
func sessionTag(r *http.Request) string {
	c, err := r.Cookie(ui.SessionCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	if len(c.Value) > sessionLogPrefix {
		return c.Value[:sessionLogPrefix]
	}
	return c.Value
}

// statusWriter captures the response status code and body size.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}
