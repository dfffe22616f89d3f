package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. Methods are nil-safe
// so tests can pass a nil *Metrics without registering collectors.
type Metrics struct {
	OperationsApplied      *prometheus.CounterVec
	OperationFailures      *prometheus.CounterVec
	AuthorizationDecisions *prometheus.CounterVec
	RequestLatency         *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		OperationsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_operations_applied_total",
			Help: "Consent operations applied in ledger order, by operation kind.",
		}, []string{"op"}),
		OperationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_operation_failures_total",
			Help: "Consent operations rejected, by error code.",
		}, []string{"op", "code"}),
		AuthorizationDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentry_authorization_decisions_total",
			Help: "Authorization query decisions, by outcome.",
		}, []string{"decision"}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentry_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) IncOperation(op string) {
	if m == nil {
		return
	}
	m.OperationsApplied.WithLabelValues(op).Inc()
}

func (m *Metrics) IncOperationFailure(op, code string) {
	if m == nil {
		return
	}
	m.OperationFailures.WithLabelValues(op, code).Inc()
}

func (m *Metrics) IncAuthorizationDecision(allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthorizationDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(route, status).Observe(seconds)
}
