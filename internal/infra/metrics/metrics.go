package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instrumentation counters.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	keyOperationsTotal   *prometheus.CounterVec
	certOperationsTotal  *prometheus.CounterVec
	verificationsTotal   *prometheus.CounterVec
	replaysDetectedTotal prometheus.Counter
	auditAppendsTotal    prometheus.Counter
	auditSkipsTotal      prometheus.Counter
}

func NewMetrics() *Metrics {
	return newMetricsWithRegistry(prometheus.DefaultRegisterer)
}

func newMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		keyOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "key_operations_total",
				Help: "Key lifecycle operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		certOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certificate_operations_total",
				Help: "Certificate lifecycle operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		verificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifications_total",
				Help: "Integrity verifications by resulting status",
			},
			[]string{"status"},
		),
		replaysDetectedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "replays_detected_total",
				Help: "Requests rejected by the replay guard",
			},
		),
		auditAppendsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_appends_total",
				Help: "Entries appended to the audit chain",
			},
		),
		auditSkipsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_skips_total",
				Help: "Audit entries skipped or dropped",
			},
		),
	}
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

func (m *Metrics) RecordKeyOperation(operation string, err error) {
	m.keyOperationsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) RecordCertOperation(operation string, err error) {
	m.certOperationsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) RecordVerification(status string) {
	m.verificationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordReplayDetected() {
	m.replaysDetectedTotal.Inc()
}

func (m *Metrics) RecordAuditAppend(written bool) {
	if written {
		m.auditAppendsTotal.Inc()
		return
	}
	m.auditSkipsTotal.Inc()
}

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
