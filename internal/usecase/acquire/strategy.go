package acquire

import (
	"context"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/workerpool"
)

// Strategy is one way of acquiring content for a request.
//
// Attempt must be safe to call repeatedly for the same request and must
// return when ctx is done. worker is nil unless the strategy was registered
// with a pool, in which case it is exclusively leased for the call.
// Returning an error that wraps entity.ErrWorkerCorrupted makes the pool
// discard the worker.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req *entity.AcquisitionRequest, worker workerpool.Worker) (*entity.Result, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc struct {
	StrategyName string
	Fn           func(ctx context.Context, req *entity.AcquisitionRequest, worker workerpool.Worker) (*entity.Result, error)
}

// Name returns the strategy name.
func (f StrategyFunc) Name() string { return f.StrategyName }

// Attempt calls Fn.
func (f StrategyFunc) Attempt(ctx context.Context, req *entity.AcquisitionRequest, worker workerpool.Worker) (*entity.Result, error) {
	return f.Fn(ctx, req, worker)
}

// healthReporter is implemented by workers that can tell when they should
// no longer be reused.
type healthReporter interface {
	Healthy() bool
}

func workerHealthy(w workerpool.Worker) bool {
	if hr, ok := w.(healthReporter); ok {
		return hr.Healthy()
	}
	return true
}
