package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"acquirer/internal/domain/entity"
	"acquirer/internal/observability/metrics"
)

// Sink receives every successful result of a batch. Put may be called from
// several goroutines at once.
type Sink interface {
	Put(ctx context.Context, result *entity.Result) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, result *entity.Result) error

// Put calls f.
func (f SinkFunc) Put(ctx context.Context, result *entity.Result) error { return f(ctx, result) }

// RequestFailure is a request of a batch that produced no result.
type RequestFailure struct {
	RequestID string
	Key       string
	Err       error
}

// BatchStats contains statistics about a batch run.
type BatchStats struct {
	Requests  int
	Succeeded int64
	Failed    int64
	Items     int64
	Failures  []RequestFailure
	Duration  time.Duration
}

// AcquireAll runs reqs concurrently, at most WithParallelism at a time, and
// hands each result to sink. A failed request is counted and reported in
// the stats without stopping the others. A sink error is critical: it stops
// the batch and is returned.
func (s *Service) AcquireAll(ctx context.Context, reqs []*entity.AcquisitionRequest, sink Sink) (*BatchStats, error) {
	start := time.Now()
	stats := &BatchStats{Requests: len(reqs)}
	var failMu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallelism)

	for _, req := range reqs {
		eg.Go(func() error {
			result, err := s.Acquire(egCtx, req)
			if err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				f := RequestFailure{Err: err}
				if req != nil {
					f.RequestID, f.Key = req.ID(), req.Key()
				}
				failMu.Lock()
				stats.Failures = append(stats.Failures, f)
				failMu.Unlock()
				return nil
			}

			if err := sink.Put(egCtx, result); err != nil {
				return fmt.Errorf("deliver result for %s: %w", result.Key, err)
			}
			atomic.AddInt64(&stats.Succeeded, 1)
			atomic.AddInt64(&stats.Items, int64(len(result.Items)))
			return nil
		})
	}

	err := eg.Wait()
	stats.Duration = time.Since(start)
	metrics.RecordBatch(int(stats.Succeeded), int(stats.Failed), stats.Duration)

	s.logger.Info("batch acquisition completed",
		slog.Int("requests", stats.Requests),
		slog.Int64("succeeded", stats.Succeeded),
		slog.Int64("failed", stats.Failed),
		slog.Int64("items", stats.Items),
		slog.Duration("duration", stats.Duration))

	if err != nil {
		return stats, err
	}
	return stats, nil
}
