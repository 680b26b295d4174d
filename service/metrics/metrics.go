package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service. Following the
// explicit dependency injection pattern, this struct is passed to every
// component that records metrics; components accept a nil *Metrics.
type Metrics struct {
	// Pipeline metrics
	pipelineRunsTotal     *prometheus.CounterVec
	pipelineStepDuration  *prometheus.HistogramVec
	pipelinePhaseDuration *prometheus.HistogramVec
	broadcastsTotal       *prometheus.CounterVec

	// Ledger RPC metrics
	ledgerSubmitsTotal   *prometheus.CounterVec
	ledgerSubmitDuration *prometheus.HistogramVec

	// HTTP metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		pipelineRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Total number of pipeline runs by terminal outcome",
			},
			[]string{"outcome"},
		),
		pipelineStepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_step_duration_seconds",
				Help:    "Recorded duration of individual pipeline steps",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"phase", "step"},
		),
		pipelinePhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_phase_duration_seconds",
				Help:    "Recorded total duration per pipeline phase",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"phase"},
		),
		broadcastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_broadcasts_total",
				Help: "Total number of settlement broadcasts by source (ledger or synthetic)",
			},
			[]string{"source"},
		),
		ledgerSubmitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_calls_total",
				Help: "Total number of ledger RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		ledgerSubmitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_rpc_call_duration_seconds",
				Help:    "Duration of ledger RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by handler, method and status class",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of currently connected SSE clients",
			},
		),
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published by event kind and status",
			},
			[]string{"kind", "status"},
		),
	}
}

// RecordPipelineRun increments the run counter for a terminal outcome
// ("settled" or "failed").
func (m *Metrics) RecordPipelineRun(outcome string) {
	m.pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordPipelineStep observes one step's recorded duration.
func (m *Metrics) RecordPipelineStep(phase, step string, seconds float64) {
	m.pipelineStepDuration.WithLabelValues(phase, step).Observe(seconds)
}

// RecordPipelinePhase observes a phase's recorded total duration.
func (m *Metrics) RecordPipelinePhase(phase string, seconds float64) {
	m.pipelinePhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordBroadcast counts a settlement broadcast by source: "ledger" for a
// real submission, "synthetic" for the fallback path.
func (m *Metrics) RecordBroadcast(source string) {
	m.broadcastsTotal.WithLabelValues(source).Inc()
}

// RecordLedgerSubmit records one ledger RPC call.
func (m *Metrics) RecordLedgerSubmit(method, status string, seconds float64) {
	m.ledgerSubmitsTotal.WithLabelValues(method, status).Inc()
	m.ledgerSubmitDuration.WithLabelValues(method).Observe(seconds)
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, seconds float64) {
	m.httpRequestDuration.WithLabelValues(handler, method).Observe(seconds)
	m.httpRequestsTotal.WithLabelValues(handler, method, statusClass(statusCode)).Inc()
}

// SSEConnectionOpened increments the active SSE connection gauge.
func (m *Metrics) SSEConnectionOpened() {
	m.sseActiveConnections.Inc()
}

// SSEConnectionClosed decrements the active SSE connection gauge.
func (m *Metrics) SSEConnectionClosed() {
	m.sseActiveConnections.Dec()
}

// RecordNATSPublish records one publish attempt for an event kind
// ("step" or "settlement").
func (m *Metrics) RecordNATSPublish(kind, status string) {
	m.natsMessagesPublished.WithLabelValues(kind, status).Inc()
}

// statusClass buckets status codes into their class ("2xx", "4xx", ...) to
// keep label cardinality low.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
