// Package metrics holds the Prometheus collectors for the panel server and
// its calls to the bot backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	backendRequestsTotal   *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec

	panelStates prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webpanel_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpanel_http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webpanel_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		backendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpanel_backend_requests_total",
			Help: "Requests sent to the bot backend, by method and outcome.",
		}, []string{"method", "status"}),
		backendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webpanel_backend_request_duration_seconds",
			Help:    "Bot backend request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		panelStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webpanel_panel_states",
			Help: "Live per-session application states.",
		}),
	}
	m.registry.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.backendRequestsTotal, m.backendRequestDuration,
		m.panelStates,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveBackend records one backend call. status is the HTTP status code,
// or 0 when the request never got a response.
func (m *Metrics) ObserveBackend(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.backendRequestsTotal.WithLabelValues(method, label).Inc()
	m.backendRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SetPanelStates records how many states the panel manager holds.
func (m *Metrics) SetPanelStates(n int) {
	if m == nil {
		return
	}
	m.panelStates.Set(float64(n))
}

// Instrument wraps next with in-flight, count and latency collection.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.httpRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.code)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers work through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
