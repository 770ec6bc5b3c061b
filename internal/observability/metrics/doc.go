// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all pipeline metrics including:
//   - HTTP request metrics for the worker's health and metrics server
//   - Acquisition metrics (attempts, requests, batches, items)
//   - Circuit breaker state and transitions
//   - Worker pool occupancy and checkout wait time
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "acquirer/internal/observability/metrics"
//
//	func acquire(strategy string) {
//	    start := time.Now()
//	    // ... run the strategy ...
//	    metrics.RecordAttempt(strategy, "success", "none", time.Since(start))
//	}
package metrics
