package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scoreboard/core"
)

// Manager owns the scoreboard's Prometheus collectors. A nil or disabled Manager accepts
// every call and records nothing.
type Manager struct {
	namespace         string
	subsystem         string
	histogramBuckets  []float64
	enabled           bool
	runtimeCollectors bool
	constLabels       map[string]string
	registry          *prometheus.Registry

	// Leaderboard
	submissions    *prometheus.CounterVec
	reads          *prometheus.CounterVec
	backendErrors  *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec

	// Failover
	failovers      *prometheus.CounterVec
	fallbackActive prometheus.Gauge

	// Event bus
	eventsDropped prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var defaultLatencyBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// NewManager creates a metrics manager registered on its own registry unless
// WithPrometheusRegistry says otherwise.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:         "scoreboard",
		subsystem:         "leaderboard",
		histogramBuckets:  defaultLatencyBuckets,
		enabled:           true,
		runtimeCollectors: true,
		constLabels:       map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.enabled {
		m.initializeMetrics()
	}
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)
	if m.runtimeCollectors {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "score_submissions_total",
		Help:        "Accepted score submissions by backend and whether the stored best changed",
		ConstLabels: m.constLabels,
	}, []string{"backend", "outcome"})

	m.reads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "reads_total",
		Help:        "Leaderboard reads by backend",
		ConstLabels: m.constLabels,
	}, []string{"backend"})

	m.backendErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "backend_errors_total",
		Help:        "Failed leaderboard operations by operation and error kind",
		ConstLabels: m.constLabels,
	}, []string{"operation", "kind"})

	m.backendLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "backend_latency_milliseconds",
		Help:        "Latency of leaderboard backend calls in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"operation", "backend"})

	m.failovers = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "backend_failovers_total",
		Help:        "Switches from the primary store to the in-memory fallback",
		ConstLabels: m.constLabels,
	}, []string{"from"})

	m.fallbackActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "fallback_active",
		Help:        "1 while the in-memory fallback serves requests",
		ConstLabels: m.constLabels,
	})

	m.eventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "events_dropped_total",
		Help:        "Domain events discarded because the async event queue was full",
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

func (m *Manager) active() bool { return m != nil && m.enabled }


// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if !m.active() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// HandleEvent records domain events. It has the signature of an event bus handler.
func (m *Manager) HandleEvent(_ context.Context, ev core.Event) {
	if !m.active() {
		return
	}
	switch ev.Type {
	case core.EventScoreSubmitted:
		outcome := "unchanged"
		if ev.Updated {
			outcome = "updated"
		}
		m.submissions.WithLabelValues(ev.Backend, outcome).Inc()
	case core.EventBackendFailover:
		m.failovers.WithLabelValues(ev.Backend).Inc()
		m.fallbackActive.Set(1)
	}
}

// SetFallbackActive reflects the controller state at startup.
func (m *Manager) SetFallbackActive(active bool) {
	if !m.active() {
		return
	}
	if active {
		m.fallbackActive.Set(1)
		return
	}
	m.fallbackActive.Set(0)
}

// ObserveBackend records one backend call: its latency, a read when the operation is a
// top-K lookup, and the error kind on failure.
func (m *Manager) ObserveBackend(operation, backend string, d time.Duration, err error) {
	if !m.active() {
		return
	}
	m.backendLatency.WithLabelValues(operation, backend).Observe(float64(d) / float64(time.Millisecond))
	if err != nil {
		m.backendErrors.WithLabelValues(operation, ErrorKind(err)).Inc()
		return
	}
	if operation == "top_k" {
		m.reads.WithLabelValues(backend).Inc()
	}
}

// RecordEventDropped counts an event the bus could not queue.
func (m *Manager) RecordEventDropped(core.Event) {
	if !m.active() {
		return
	}
	m.eventsDropped.Inc()
}

// RecordHTTPRequest records a finished HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method string, statusCode int, d time.Duration) {
	if !m.active() {
		return
	}
	code := strconv.Itoa(statusCode)
	m.httpRequests.WithLabelValues(endpoint, method, code).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, code).Observe(float64(d) / float64(time.Millisecond))
}

// ErrorKind maps an error onto the taxonomy used as a metric label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, core.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, core.ErrBackendConnectivity):
		return "connectivity"
	case errors.Is(err, core.ErrBackendOperation):
		return "operation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
