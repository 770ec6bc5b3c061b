// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track requests served by the worker's HTTP endpoints
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Acquisition metrics track strategy invocations and whole requests
var (
	// AcquisitionAttemptsTotal counts strategy invocations by outcome.
	// result is "success" or the error kind; kind is "none" on success.
	AcquisitionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_attempts_total",
			Help: "Total number of strategy invocations",
		},
		[]string{"strategy", "result", "kind"},
	)

	// AcquisitionAttemptDuration measures one strategy invocation including retries
	AcquisitionAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acquisition_attempt_duration_seconds",
			Help:    "Time taken by one strategy invocation, retries included",
			Buckets: []float64{0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6, 51.2},
		},
		[]string{"strategy"},
	)

	// AcquisitionRetriesTotal counts retried attempts per strategy
	AcquisitionRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_retries_total",
			Help: "Total number of retried attempts",
		},
		[]string{"strategy"},
	)

	// AcquisitionRequestsTotal counts acquisition requests by result (success, failure)
	AcquisitionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_requests_total",
			Help: "Total number of acquisition requests",
		},
		[]string{"result"},
	)

	// AcquisitionRequestDuration measures a request across its whole fallback chain
	AcquisitionRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "acquisition_request_duration_seconds",
			Help:    "Time taken by an acquisition request across all strategies",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// AcquisitionItemsTotal counts items delivered per winning strategy
	AcquisitionItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_items_total",
			Help: "Total number of items delivered",
		},
		[]string{"strategy"},
	)

	// BatchRunsTotal counts batch runs by result (success, partial, failure)
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_batch_runs_total",
			Help: "Total number of batch acquisition runs",
		},
		[]string{"result"},
	)

	// BatchDuration measures a whole batch run
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "acquisition_batch_duration_seconds",
			Help:    "Time taken by a batch acquisition run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
)

// Circuit breaker metrics
var (
	// CircuitBreakerState is 0 for closed, 1 for half-open and 2 for open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"key", "strategy"},
	)

	// CircuitBreakerTransitionsTotal counts state transitions
	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"strategy", "from", "to"},
	)
)

// Worker pool metrics
var (
	// WorkerPoolActive tracks checked-out workers per pool
	WorkerPoolActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_pool_active",
			Help: "Number of checked-out workers",
		},
		[]string{"pool"},
	)

	// WorkerPoolIdle tracks idle workers per pool
	WorkerPoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_pool_idle",
			Help: "Number of idle workers",
		},
		[]string{"pool"},
	)

	// WorkerPoolCheckoutWait measures how long checkouts waited for a worker
	WorkerPoolCheckoutWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_pool_checkout_wait_seconds",
			Help:    "Time spent waiting for a worker",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"pool"},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
