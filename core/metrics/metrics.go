package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// provisioningReports counts push and pull reports by outcome.
	provisioningReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idm_reconciler_provisioning_reports_total",
			Help: "Provisioning reports produced by push and pull executors",
		},
		[]string{"direction", "operation", "resource", "status"},
	)

	provisioningDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idm_reconciler_provisioning_duration_seconds",
			Help:    "Duration of single entity push and pull",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"direction", "resource"},
	)

	connectorChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idm_reconciler_connector_checks_total",
			Help: "Connector liveness checks by outcome",
		},
		[]string{"outcome"},
	)

	reconcileRuns = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idm_reconciler_full_reconciliation_duration_seconds",
			Help:    "Duration of full resource reconciliations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"resource"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idm_reconciler_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idm_reconciler_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Direction of a provisioning operation.
const (
	DirectionPush = "push"
	DirectionPull = "pull"
)

// ObserveReport records one provisioning report.
func ObserveReport(direction, operation, resource, status string, elapsed time.Duration) {
	provisioningReports.WithLabelValues(direction, operation, resource, status).Inc()
	provisioningDuration.WithLabelValues(direction, resource).Observe(elapsed.Seconds())
}

// ObserveConnectorCheck records a check outcome (REACHABLE, UNREACHABLE, FAILURE).
func ObserveConnectorCheck(outcome string) {
	connectorChecks.WithLabelValues(outcome).Inc()
}

// ObserveReconciliation records a full reconciliation of resource.
func ObserveReconciliation(resource string, elapsed time.Duration) {
	reconcileRuns.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// ObserveRequest records an HTTP request.
func ObserveRequest(method, route, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
