// Package grpc exposes acquisition health over the standard gRPC health
// checking protocol.
package grpc

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"acquirer/internal/resilience/circuitbreaker"
	"acquirer/internal/usecase/health"
)

// ServicePrefix prefixes the per-strategy service names, so the render
// strategy is reported as "acquisition.render". The empty service name
// reports the pipeline as a whole.
const ServicePrefix = "acquisition."

// SnapshotSource provides acquisition health snapshots.
type SnapshotSource interface {
	SnapshotAll() map[string]health.Snapshot
}

// HealthReporter maps health snapshots onto gRPC serving statuses. A
// strategy is NOT_SERVING when every key it has been used against has an
// open circuit, and SERVING otherwise.
type HealthReporter struct {
	server     *grpchealth.Server
	source     SnapshotSource
	strategies []string
	logger     *slog.Logger
}

// NewHealthReporter creates a reporter for the given strategies. All
// services start SERVING.
func NewHealthReporter(source SnapshotSource, strategies []string, logger *slog.Logger) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &HealthReporter{
		server:     grpchealth.NewServer(),
		source:     source,
		strategies: slices.Sorted(slices.Values(strategies)),
		logger:     logger,
	}
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range r.strategies {
		r.server.SetServingStatus(ServicePrefix+name, healthpb.HealthCheckResponse_SERVING)
	}
	return r
}

// Register attaches the health service to s.
func (r *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Update recomputes every strategy status from the current snapshots and
// returns the statuses it set.
func (r *HealthReporter) Update() map[string]healthpb.HealthCheckResponse_ServingStatus {
	tracked := make(map[string]int)
	open := make(map[string]int)
	for _, snap := range r.source.SnapshotAll() {
		for name, st := range snap.Strategies {
			tracked[name]++
			if st.Circuit == circuitbreaker.StateOpen.String() {
				open[name]++
			}
		}
	}

	statuses := make(map[string]healthpb.HealthCheckResponse_ServingStatus, len(r.strategies))
	for _, name := range r.strategies {
		status := healthpb.HealthCheckResponse_SERVING
		if tracked[name] > 0 && open[name] == tracked[name] {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		r.server.SetServingStatus(ServicePrefix+name, status)
		statuses[ServicePrefix+name] = status
	}
	return statuses
}

// Run updates the statuses every interval until ctx is done, then marks
// every service NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Update()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			r.logger.Info("grpc health reporter stopped")
			return
		case <-ticker.C:
			for service, status := range r.Update() {
				if status != healthpb.HealthCheckResponse_SERVING {
					r.logger.Warn("strategy not serving", slog.String("service", service))
				}
			}
		}
	}
}
