// Package observability groups what the acquisition pipeline reports about
// itself.
//
// The logging subpackage builds slog loggers and carries request IDs through
// contexts. The metrics subpackage owns the Prometheus collectors for
// attempts, retries, circuit transitions and worker pools. Spans come from
// tracing, and slo turns health snapshots into objective gauges.
//
//	logger := logging.NewLogger()
//	metrics.RecordRequest("success", time.Since(start))
//	slo.UpdateSuccessRatio(ratio)
package observability
