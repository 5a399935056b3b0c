package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Batch metrics
	BatchesTotal  prometheus.Counter
	BatchFailures prometheus.Counter

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	AttemptsTotal *prometheus.CounterVec

	// Session metrics
	SessionsOpen   prometheus.Gauge
	SessionsOpened prometheus.Counter
	GateWaiting    prometheus.Gauge

	// Capture metrics
	CapturesTotal  *prometheus.CounterVec
	QueueMessages  *prometheus.CounterVec
	ResultsWritten prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "batches_total",
				Help: "Total number of batches started",
			},
		),
		BatchFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "batch_engine_failures_total",
				Help: "Total number of batches whose engine failed to start",
			},
		),

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_total",
				Help: "Total number of settled queries",
			},
			[]string{"status", "kind"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_duration_seconds",
				Help:    "Duration of a query from admission to settlement",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
			},
			[]string{"status"},
		),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_attempts_total",
				Help: "Total number of attempts by outcome",
			},
			[]string{"outcome"},
		),

		SessionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_open",
				Help: "Number of currently open portal sessions",
			},
		),
		SessionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_opened_total",
				Help: "Total number of portal sessions opened",
			},
		),
		GateWaiting: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gate_waiting",
				Help: "Number of queries waiting for a concurrency slot",
			},
		),

		CapturesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captures_total",
				Help: "Total number of diagnostic captures by status",
			},
			[]string{"status"},
		),
		QueueMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_messages_total",
				Help: "Total number of queue messages by action",
			},
			[]string{"action"},
		),
		ResultsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "results_written_total",
				Help: "Total number of results appended to the results file",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.BatchesTotal)
	m.registry.MustRegister(m.BatchFailures)

	m.registry.MustRegister(m.QueriesTotal)
	m.registry.MustRegister(m.QueryDuration)
	m.registry.MustRegister(m.AttemptsTotal)

	m.registry.MustRegister(m.SessionsOpen)
	m.registry.MustRegister(m.SessionsOpened)
	m.registry.MustRegister(m.GateWaiting)

	m.registry.MustRegister(m.CapturesTotal)
	m.registry.MustRegister(m.QueueMessages)
	m.registry.MustRegister(m.ResultsWritten)
}

// The recorder methods below are safe on a nil *Metrics so callers can run
// without instrumentation.

// BatchStarted counts a new batch.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
}

// EngineFailed counts a batch whose engine could not be launched.
func (m *Metrics) EngineFailed() {
	if m == nil {
		return
	}
	m.BatchFailures.Inc()
}

// QuerySettled records the terminal outcome of one query.
func (m *Metrics) QuerySettled(status, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status, kind).Inc()
	m.QueryDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Attempt records one attempt outcome ("success", "retry", "fail").
func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

// SessionOpened tracks a newly opened session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
	m.SessionsOpen.Inc()
}

// SessionClosed tracks a closed session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsOpen.Dec()
}

// SetGateWaiting publishes the number of queued gate waiters.
func (m *Metrics) SetGateWaiting(n int) {
	if m == nil {
		return
	}
	m.GateWaiting.Set(float64(n))
}

// Capture records a diagnostic capture ("ok" or "failed").
func (m *Metrics) Capture(status string) {
	if m == nil {
		return
	}
	m.CapturesTotal.WithLabelValues(status).Inc()
}

// QueueMessage records a queue action: received, malformed, relayed,
// relay_failed, deleted, delete_failed or requeued.
func (m *Metrics) QueueMessage(action string) {
	if m == nil {
		return
	}
	m.QueueMessages.WithLabelValues(action).Inc()
}

// ResultWritten counts a persisted result.
func (m *Metrics) ResultWritten() {
	if m == nil {
		return
	}
	m.ResultsWritten.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
