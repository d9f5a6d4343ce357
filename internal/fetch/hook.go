// Package fetch binds a backend endpoint to a {data, loading, error} snapshot
// that is re-fetched whenever its dependencies change.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// NoEndpoint means "do not fetch yet", e.g. while no server is selected.
const NoEndpoint = ""

// Getter performs a GET and returns the JSON body.
type Getter interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// GetterFunc adapts a function to Getter.
type GetterFunc func(ctx context.Context, path string) (json.RawMessage, error)

// Get calls f.
func (f GetterFunc) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return f(ctx, path)
}

// Snapshot is the latest result of a hook.
type Snapshot struct {
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
	Loading  bool            `json:"loading"`
	Error    string          `json:"error,omitempty"`
}

// Decode unmarshals Data into v. It fails if there is no data.
func (s Snapshot) Decode(v any) error {
	if len(s.Data) == 0 || string(s.Data) == "null" {
		return errors.New("no data")
	}
	return json.Unmarshal(s.Data, v)
}

// HasData reports whether the snapshot carries a body.
func (s Snapshot) HasData() bool {
	return len(s.Data) > 0 && string(s.Data) != "null"
}

// Hook tracks one endpoint binding. Each request carries a sequence number;
// a response is applied only if no newer request was issued since.
type Hook struct {
	getter  Getter
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	seq      uint64
	endpoint string
	deps     []any
	bound    bool
	snap     Snapshot
	settled  chan struct{} // closed when the request numbered seq settles
}

// New creates a hook. timeout bounds each request (0 = none).
// A fresh hook reports Loading until its first Use or Fetch.
func New(g Getter, timeout time.Duration, logger *slog.Logger) *Hook {
	return &Hook{
		getter:  g,
		timeout: timeout,
		logger:  logger,
		snap:    Snapshot{Loading: true},
		settled: make(chan struct{}),
	}
}

// SetGetter swaps the getter used by future requests.
func (h *Hook) SetGetter(g Getter) {
	h.mu.Lock()
	h.getter = g
	h.mu.Unlock()
}

// Use issues a request when (endpoint, deps) differs from the previous call,
// then returns the current snapshot.
func (h *Hook) Use(ctx context.Context, endpoint string, deps ...any) Snapshot {
	h.mu.Lock()
	same := h.bound && h.endpoint == endpoint && reflect.DeepEqual(h.deps, deps)
	h.mu.Unlock()

	if !same {
		h.start(ctx, endpoint, deps)
	}
	return h.Snapshot()
}

// Fetch issues a request for endpoint unconditionally.
func (h *Hook) Fetch(ctx context.Context, endpoint string) {
	h.mu.Lock()
	deps := h.deps
	h.mu.Unlock()
	h.start(ctx, endpoint, deps)
}

// Refetch re-issues the request for the current endpoint.
func (h *Hook) Refetch(ctx context.Context) {
	h.mu.Lock()
	endpoint, deps, bound := h.endpoint, h.deps, h.bound
	h.mu.Unlock()
	if !bound {
		return
	}
	h.start(ctx, endpoint, deps)
}

// Snapshot returns the current result.
func (h *Hook) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

// Wait blocks until the latest request settles or ctx is done.
func (h *Hook) Wait(ctx context.Context) (Snapshot, error) {
	for {
		h.mu.Lock()
		ch, seq := h.settled, h.seq
		h.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return h.Snapshot(), ctx.Err()
		}

		h.mu.Lock()
		if h.seq == seq {
			snap := h.snap
			h.mu.Unlock()
			return snap, nil
		}
		// Superseded while waiting; follow the newer request.
		h.mu.Unlock()
	}
}

func (h *Hook) start(ctx context.Context, endpoint string, deps []any) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.endpoint = endpoint
	h.deps = deps
	h.bound = true
	h.settled = make(chan struct{})
	settled := h.settled
	getter := h.getter

	if endpoint == NoEndpoint {
		h.snap = Snapshot{}
		close(settled)
		h.mu.Unlock()
		return
	}

	h.snap.Endpoint = endpoint
	h.snap.Loading = true
	h.snap.Error = ""
	h.mu.Unlock()

	// The request outlives the caller's request scope; only its values are kept.
	reqCtx := context.WithoutCancel(ctx)
	go func() {
		var cancel context.CancelFunc = func() {}
		if h.timeout > 0 {
			reqCtx, cancel = context.WithTimeout(reqCtx, h.timeout)
		}
		defer cancel()

		data, err := safeGet(reqCtx, getter, endpoint)

		h.mu.Lock()
		defer h.mu.Unlock()
		defer close(settled)
		if seq != h.seq {
			if h.logger != nil {
				h.logger.Debug("dropping stale response", "endpoint", endpoint, "seq", seq, "latest", h.seq)
			}
			return
		}
		if err != nil {
			if h.logger != nil {
				h.logger.Warn("fetch failed", "endpoint", endpoint, "error", err)
			}
			h.snap = Snapshot{Endpoint: endpoint, Error: err.Error()}
		} else {
			h.snap = Snapshot{Endpoint: endpoint, Data: data}
		}
	}()
}

// safeGet converts a panicking getter into an error so that nothing escapes
// into the render path.
func safeGet(ctx context.Context, g Getter, endpoint string) (data json.RawMessage, err error) {
	if g == nil {
		return nil, errors.New("no backend connection")
	}
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("fetch %s: panic: %v", endpoint, r)
		}
	}()
	return g.Get(ctx, endpoint)
}
