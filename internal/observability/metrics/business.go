package metrics

import "time"

// RecordAttempt records one strategy invocation.
// result is "success" or the error kind of the failure.
func RecordAttempt(strategy, result, kind string, duration time.Duration) {
	AcquisitionAttemptsTotal.WithLabelValues(strategy, result, kind).Inc()
	AcquisitionAttemptDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordRetries records the retries an invocation needed beyond its first attempt.
func RecordRetries(strategy string, attempts int) {
	if attempts > 1 {
		AcquisitionRetriesTotal.WithLabelValues(strategy).Add(float64(attempts - 1))
	}
}

// RecordRequest records the end of an acquisition request.
// Result should be either "success" or "failure".
func RecordRequest(result string, duration time.Duration) {
	AcquisitionRequestsTotal.WithLabelValues(result).Inc()
	AcquisitionRequestDuration.Observe(duration.Seconds())
}

// RecordItems records the number of items a strategy delivered.
func RecordItems(strategy string, count int) {
	if count > 0 {
		AcquisitionItemsTotal.WithLabelValues(strategy).Add(float64(count))
	}
}

// RecordBatch records a batch run.
//
// Example:
//
//	start := time.Now()
//	stats, err := svc.AcquireAll(ctx, requests, sink)
//	metrics.RecordBatch(stats.Succeeded, stats.Failed, time.Since(start))
func RecordBatch(succeeded, failed int, duration time.Duration) {
	result := "success"
	switch {
	case failed > 0 && succeeded == 0:
		result = "failure"
	case failed > 0:
		result = "partial"
	}
	BatchRunsTotal.WithLabelValues(result).Inc()
	BatchDuration.Observe(duration.Seconds())
}

// SetCircuitState updates the breaker state gauge for a key.
// state uses the gauge encoding: 0 closed, 1 half-open, 2 open.
func SetCircuitState(key, strategy string, state float64) {
	CircuitBreakerState.WithLabelValues(key, strategy).Set(state)
}

// RecordCircuitTransition counts a breaker state change.
func RecordCircuitTransition(strategy, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(strategy, from, to).Inc()
}

// UpdateWorkerPoolStats updates worker pool occupancy gauges.
func UpdateWorkerPoolStats(pool string, active, idle int) {
	WorkerPoolActive.WithLabelValues(pool).Set(float64(active))
	WorkerPoolIdle.WithLabelValues(pool).Set(float64(idle))
}

// RecordCheckoutWait records how long a checkout waited for a worker.
func RecordCheckoutWait(pool string, wait time.Duration) {
	WorkerPoolCheckoutWait.WithLabelValues(pool).Observe(wait.Seconds())
}
