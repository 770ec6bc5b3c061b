package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"acquirer/internal/domain/entity"
	"acquirer/internal/observability/logging"
	"acquirer/internal/observability/metrics"
	"acquirer/internal/observability/tracing"
	"acquirer/internal/resilience/circuitbreaker"
	"acquirer/internal/resilience/fallback"
	"acquirer/internal/resilience/retry"
	"acquirer/internal/resilience/workerpool"
	"acquirer/internal/usecase/health"
)

// RetryResolver returns the retry configuration for a target key and strategy.
type RetryResolver func(key, strategy string) retry.Config

type registration struct {
	strategy Strategy
	pool     *workerpool.Pool
}

// Service runs acquisition requests. It owns no breaker, pool or monitor
// state of its own; those are shared with the rest of the process and passed
// in at construction. A Service is safe for concurrent use.
type Service struct {
	breaker *circuitbreaker.Breaker
	monitor *health.Monitor

	mu         sync.RWMutex
	strategies map[string]registration

	retryFor    RetryResolver
	classify    retry.Classifier
	accept      fallback.Acceptor
	parallelism int
	logger      *slog.Logger
	tracer      trace.Tracer
	chain       *fallback.Chain
}

// Option configures a Service.
type Option func(*Service)

// WithRetryResolver sets how retry settings are chosen per key and strategy.
func WithRetryResolver(r RetryResolver) Option {
	return func(s *Service) { s.retryFor = r }
}

// WithClassifier replaces retry.DefaultClassifier.
func WithClassifier(c retry.Classifier) Option {
	return func(s *Service) { s.classify = c }
}

// WithAcceptor replaces the default non-empty acceptance predicate.
func WithAcceptor(a fallback.Acceptor) Option {
	return func(s *Service) { s.accept = a }
}

// WithParallelism bounds how many requests AcquireAll runs at once.
func WithParallelism(n int) Option {
	return func(s *Service) { s.parallelism = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTracer sets the tracer used for request and strategy spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService creates a Service around a shared breaker and monitor.
//
// Example:
//
//	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
//	monitor := health.NewMonitor(health.WithCircuitReader(breaker))
//	svc := acquire.NewService(breaker, monitor, acquire.WithParallelism(4))
//	_ = svc.Register(renderStrategy, renderPool)
func NewService(breaker *circuitbreaker.Breaker, monitor *health.Monitor, opts ...Option) *Service {
	s := &Service{
		breaker:     breaker,
		monitor:     monitor,
		strategies:  make(map[string]registration),
		retryFor:    func(string, string) retry.Config { return retry.DefaultConfig() },
		classify:    retry.DefaultClassifier,
		accept:      fallback.NonEmpty,
		parallelism: 4,
		logger:      slog.Default(),
		tracer:      tracing.GetTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism < 1 {
		s.parallelism = 1
	}
	s.chain = fallback.New(fallback.WithAcceptor(s.accept), fallback.WithLogger(s.logger))
	return s
}

// Register adds a strategy. When pool is non-nil every invocation of the
// strategy runs on a worker leased from it.
func (s *Service) Register(strategy Strategy, pool *workerpool.Pool) error {
	name := strategy.Name()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.strategies[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	s.strategies[name] = registration{strategy: strategy, pool: pool}
	return nil
}

// Strategies returns the registered strategy names, sorted.
func (s *Service) Strategies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.strategies))
	for name := range s.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) lookup(name string) (registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.strategies[name]
	return reg, ok
}

// Acquire runs the strategies of req in order and returns the first
// acceptable result. The result is a fresh value: its items are
// deduplicated, truncated to MaxItems and never shared with another call.
// When every strategy fails the error is a *fallback.Error listing each
// strategy tried and why it failed.
func (s *Service) Acquire(ctx context.Context, req *entity.AcquisitionRequest) (*entity.Result, error) {
	if req == nil {
		return nil, entity.WithKind(entity.ErrorKindInvalidInput, ErrNilRequest)
	}

	start := time.Now()
	if timeout := req.Options().Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx = logging.ContextWithRequestID(ctx, req.ID())
	logger := logging.WithRequestID(ctx, s.logger).With(slog.String("key", req.Key()))

	ctx, span := s.tracer.Start(ctx, "acquire",
		trace.WithAttributes(
			attribute.String("acquisition.request_id", req.ID()),
			attribute.String("acquisition.key", req.Key()),
			attribute.StringSlice("acquisition.strategies", req.Strategies()),
		))

	result, err := s.chain.Run(ctx, req.Key(), req.Strategies(),
		func(ctx context.Context, name string) (*entity.Result, error) {
			return s.invoke(ctx, logger, req, name)
		})
	duration := time.Since(start)

	if err != nil {
		metrics.RecordRequest("failure", duration)
		tracing.EndSpan(span, err)
		logger.Warn("acquisition failed",
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("acquisition.strategy", result.Strategy),
		attribute.Int("acquisition.items", len(result.Items)),
	)
	tracing.EndSpan(span, nil)
	metrics.RecordRequest("success", duration)
	metrics.RecordItems(result.Strategy, len(result.Items))
	logger.Info("acquisition completed",
		slog.String("strategy", result.Strategy),
		slog.Int("items", len(result.Items)),
		slog.Int("attempts", result.Attempts),
		slog.Duration("duration", duration))
	return result, nil
}

// invoke runs one strategy behind the breaker, the pool and the retry policy.
func (s *Service) invoke(ctx context.Context, logger *slog.Logger, req *entity.AcquisitionRequest, name string) (*entity.Result, error) {
	reg, ok := s.lookup(name)
	if !ok {
		return nil, entity.WithKind(entity.ErrorKindUnknown, fmt.Errorf("%w: %s", ErrUnknownStrategy, name))
	}

	logger = logger.With(slog.String("strategy", name))
	key := circuitbreaker.Key{Target: req.Key(), Strategy: name}

	ctx, span := s.tracer.Start(ctx, "strategy "+name,
		trace.WithAttributes(
			attribute.String("acquisition.key", req.Key()),
			attribute.String("acquisition.strategy", name),
		))

	// Rejected before any worker is taken, so an open circuit never
	// occupies pool capacity.
	if !s.breaker.Ready(key) {
		err := entity.WithKind(entity.ErrorKindCircuitOpen, fmt.Errorf("%w: %s", circuitbreaker.ErrOpen, key))
		logger.Debug("circuit open, skipping strategy")
		s.finish(span, entity.NewRejectedOutcome(req.Key(), name, entity.ErrorKindCircuitOpen, err))
		return nil, err
	}

	var (
		lease  *workerpool.Lease
		worker workerpool.Worker
	)
	if reg.pool != nil {
		var err error
		lease, err = reg.pool.Checkout(ctx)
		if err != nil {
			kind, _ := entity.KindOf(err)
			if kind != entity.ErrorKindCanceled && !kind.Rejection() {
				kind = entity.ErrorKindResourceExhausted
				err = entity.WithKind(kind, err)
			}
			logger.Warn("worker checkout failed",
				slog.String("kind", kind.String()),
				slog.Any("error", err))
			s.finish(span, entity.NewRejectedOutcome(req.Key(), name, kind, err))
			return nil, err
		}
		worker = lease.Worker()
	}

	ticket, err := s.breaker.Allow(key)
	if err != nil {
		// Lost the half-open probe to a concurrent request.
		s.returnWorker(reg.pool, lease, nil)
		err = entity.WithKind(entity.ErrorKindCircuitOpen, err)
		s.finish(span, entity.NewRejectedOutcome(req.Key(), name, entity.ErrorKindCircuitOpen, err))
		return nil, err
	}

	policy := retry.New(s.retryFor(req.Key(), name), retry.WithLogger(logger))
	var raw *entity.Result
	started := time.Now()
	attempts, err := policy.Execute(ctx, func(ctx context.Context) error {
		r, err := reg.strategy.Attempt(ctx, req, worker)
		if err != nil {
			return err
		}
		raw = r
		return nil
	}, s.classify)
	latency := time.Since(started)

	s.returnWorker(reg.pool, lease, err)

	if err != nil {
		kind, ok := entity.KindOf(err)
		if !ok {
			kind = entity.ErrorKindUnknown
		}
		if kind.CountsAsFailure() {
			ticket.Failure()
		} else {
			ticket.Abandon()
		}
		s.finish(span, entity.NewFailureOutcome(req.Key(), name, kind, attempts, latency, err))
		return nil, err
	}

	ticket.Success()
	s.finish(span, entity.NewSuccessOutcome(req.Key(), name, attempts, latency))
	return s.stamp(req, name, attempts, raw), nil
}

// stamp builds the caller-visible result from what the strategy returned.
func (s *Service) stamp(req *entity.AcquisitionRequest, name string, attempts int, raw *entity.Result) *entity.Result {
	var items []entity.Item
	fetchedAt := time.Now()
	if raw != nil {
		items = raw.Items
		if !raw.FetchedAt.IsZero() {
			fetchedAt = raw.FetchedAt
		}
	}
	items = entity.DedupItems(items)
	if limit := req.Options().MaxItems; limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return &entity.Result{
		RequestID: req.ID(),
		Key:       req.Key(),
		Strategy:  name,
		Items:     items,
		Attempts:  attempts,
		FetchedAt: fetchedAt,
	}
}

// returnWorker hands the leased worker back, discarding it when the failure
// or the worker itself says it can no longer be trusted.
func (s *Service) returnWorker(pool *workerpool.Pool, lease *workerpool.Lease, err error) {
	if lease == nil {
		return
	}
	if errors.Is(err, entity.ErrWorkerCorrupted) || !workerHealthy(lease.Worker()) {
		lease.Invalidate()
	} else {
		lease.Release()
	}
	st := pool.Stats()
	metrics.UpdateWorkerPoolStats(st.Name, int(st.Active), int(st.Idle))
}

// finish records an outcome everywhere it is observed and ends the span.
func (s *Service) finish(span trace.Span, o entity.Outcome) {
	// Caller cancellation says nothing about the target's health.
	if o.Kind != entity.ErrorKindCanceled {
		s.monitor.Record(o)
	}
	metrics.RecordAttempt(o.Strategy, o.Result(), o.Kind.String(), o.Latency)
	metrics.RecordRetries(o.Strategy, o.Attempts)

	span.SetAttributes(
		attribute.String("acquisition.result", o.Result()),
		attribute.Int("acquisition.attempts", o.Attempts),
	)
	tracing.EndSpan(span, o.Err)
}
