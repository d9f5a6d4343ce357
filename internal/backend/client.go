// Package backend talks to the bot's REST API on behalf of a browser session.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/me/webpanel/internal/metrics"
)

// ErrMalformedResponse is returned when a 2xx body is not valid JSON.
var ErrMalformedResponse = errors.New("malformed JSON response")

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Config holds backend connection settings.
type Config struct {
	BaseURL string        // Backend origin, e.g. "http://localhost:5000"
	APIPath string        // Prefix for REST endpoints (default "/api")
	Timeout time.Duration // Per-request timeout (0 = none)

	// MutationRate limits POST/DELETE calls per second across all sessions
	// (0 disables limiting). MutationBurst is the limiter's bucket size.
	MutationRate  float64
	MutationBurst int
}

// DefaultConfig returns settings for a backend on localhost.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:5000",
		APIPath:       "/api",
		Timeout:       15 * time.Second,
		MutationRate:  5,
		MutationBurst: 10,
	}
}

// Client is an HTTP client for the bot backend. It is shared by every
// session; credentials are bound per call via As.
type Client struct {
	baseURL    string
	apiPath    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiPath:    "/" + strings.Trim(cfg.APIPath, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    m,
		logger:     logger.With("component", "backend"),
	}
	if c.apiPath == "/" {
		c.apiPath = ""
	}
	if cfg.MutationRate > 0 {
		burst := cfg.MutationBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MutationRate), burst)
	}
	return c
}

// LoginURL is the backend's OAuth entry point. Login is a full-page redirect.
func (c *Client) LoginURL() string {
	return c.baseURL + "/auth/discord"
}

// LogoutURL is the backend's logout endpoint.
func (c *Client) LogoutURL() string {
	return c.baseURL + "/auth/logout"
}

// As binds the browser's backend cookies to a connection.
func (c *Client) As(cookies []*http.Cookie) *Conn {
	return &Conn{client: c, cookies: cookies}
}

// Endpoint builds "/{domain}/{part}/..." with each part path-escaped.
func Endpoint(domain string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(domain)
	for _, p := range parts {
		b.WriteString("/")
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// Conn is a Client bound to one user's credentials.
type Conn struct {
	client  *Client
	cookies []*http.Cookie
}

// Get performs a GET and returns the raw JSON body.
func (c *Conn) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST with a JSON body and returns the raw JSON response.
func (c *Conn) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Delete performs a DELETE and returns the raw JSON response.
func (c *Conn) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Conn) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	cl := c.client

	if method != http.MethodGet && cl.limiter != nil {
		if err := cl.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: rate limit: %w", method, path, err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	reqURL := cl.baseURL + cl.apiPath + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	cl.logger.Debug("backend request", "method", method, "path", path)

	start := time.Now()
	resp, err := cl.httpClient.Do(req)
	if err != nil {
		cl.metrics.ObserveBackend(method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	cl.metrics.ObserveBackend(method, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	cl.logger.Debug("backend response", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrMalformedResponse)
	}
	return json.RawMessage(respBody), nil
}
