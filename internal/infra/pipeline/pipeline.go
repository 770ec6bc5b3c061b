// Package pipeline assembles the acquisition pipeline from configuration:
// the shared circuit breaker and health monitor, the worker pools, the web
// and provider strategies, and the orchestrating acquire.Service.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"acquirer/internal/config"
	"acquirer/internal/domain/entity"
	"acquirer/internal/infra/fetcher"
	"acquirer/internal/infra/provider"
	"acquirer/internal/infra/scraper"
	"acquirer/internal/observability/metrics"
	"acquirer/internal/observability/slo"
	"acquirer/internal/resilience/circuitbreaker"
	"acquirer/internal/resilience/retry"
	"acquirer/internal/resilience/workerpool"
	"acquirer/internal/usecase/acquire"
	"acquirer/internal/usecase/health"
)

// Settings is everything Build needs. Zero provider configs leave the
// provider strategies unregistered.
type Settings struct {
	Pipeline    *config.Pipeline
	Fetch       fetcher.Config
	OpenAI      provider.Config
	Claude      provider.Config
	Parallelism int
}

// Pipeline is an assembled acquisition pipeline.
type Pipeline struct {
	Config  *config.Pipeline
	Breaker *circuitbreaker.Breaker
	Monitor *health.Monitor
	Service *acquire.Service
	Client  *fetcher.Client

	pools  []*workerpool.Pool
	logger *slog.Logger
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger          *slog.Logger
	providerMetrics provider.MetricsRecorder
	extra           []acquire.Strategy
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// WithProviderMetrics replaces the Prometheus recorder of the provider
// strategies.
func WithProviderMetrics(m provider.MetricsRecorder) Option {
	return func(o *buildOptions) { o.providerMetrics = m }
}

// WithStrategy registers an additional strategy without a pool.
func WithStrategy(s acquire.Strategy) Option {
	return func(o *buildOptions) { o.extra = append(o.extra, s) }
}

// Build validates s and wires the pipeline. On error every pool created so
// far is shut down.
func Build(s Settings, opts ...Option) (*Pipeline, error) {
	o := buildOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if s.Pipeline == nil {
		s.Pipeline = config.Default()
	}
	if err := s.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if err := s.Fetch.Validate(); err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	for name, pc := range map[string]provider.Config{"openai": s.OpenAI, "claude": s.Claude} {
		if !pc.Enabled() {
			continue
		}
		if err := pc.Validate(); err != nil {
			return nil, fmt.Errorf("%s config: %w", name, err)
		}
	}
	if o.providerMetrics == nil {
		o.providerMetrics = provider.NewPrometheusMetrics()
	}

	pc := s.Pipeline
	logger := o.logger

	breaker := circuitbreaker.New(pc.Defaults.Circuit,
		circuitbreaker.WithResolver(func(target string) circuitbreaker.Config {
			return pc.Resolve(target).Circuit
		}),
		circuitbreaker.WithStateChange(func(key circuitbreaker.Key, from, to circuitbreaker.State) {
			metrics.RecordCircuitTransition(key.Strategy, from.String(), to.String())
			metrics.SetCircuitState(key.Target, key.Strategy, float64(to))
		}),
		circuitbreaker.WithLogger(logger))
	monitor := health.NewMonitor(health.WithCircuitReader(breaker))

	hosts := fetcher.NewHostLimiter(s.Fetch.RateLimit, s.Fetch.RateBurst)
	client := fetcher.NewClient(s.Fetch, fetcher.WithHostLimiter(hosts), fetcher.WithClientLogger(logger))

	svc := acquire.NewService(breaker, monitor,
		acquire.WithRetryResolver(func(key, strategy string) retry.Config {
			return pc.Resolve(key).RetryFor(strategy)
		}),
		acquire.WithParallelism(s.Parallelism),
		acquire.WithLogger(logger))

	p := &Pipeline{
		Config:  pc,
		Breaker: breaker,
		Monitor: monitor,
		Service: svc,
		Client:  client,
		logger:  logger,
	}

	factory := scraper.NewFactory(client, logger)
	for _, name := range scraper.Names() {
		strategy, _ := factory.Create(name)
		var pool *workerpool.Pool
		if poolCfg, ok := pc.Pool(name); ok || scraper.NeedsSession(name) {
			if !ok {
				poolCfg = workerpool.DefaultConfig()
			}
			var err error
			pool, err = workerpool.New(name, poolCfg, fetcher.SessionFactory(s.Fetch, hosts, logger),
				workerpool.WithLogger(logger),
				workerpool.WithWaitObserver(metrics.RecordCheckoutWait))
			if err != nil {
				p.closePools()
				return nil, err
			}
			p.pools = append(p.pools, pool)
		}
		if err := svc.Register(strategy, pool); err != nil {
			p.closePools()
			return nil, err
		}
	}

	providerOpts := []provider.Option{provider.WithLogger(logger), provider.WithMetrics(o.providerMetrics)}
	var extra []acquire.Strategy
	if s.OpenAI.Enabled() {
		extra = append(extra,
			provider.NewOpenAITranslator(s.OpenAI, providerOpts...),
			provider.NewOpenAISpeech(s.OpenAI, providerOpts...))
	}
	if s.Claude.Enabled() {
		extra = append(extra, provider.NewClaudeTranslator(s.Claude, providerOpts...))
	}
	for _, strategy := range append(extra, o.extra...) {
		if err := svc.Register(strategy, nil); err != nil {
			p.closePools()
			return nil, err
		}
	}

	logger.Info("acquisition pipeline ready",
		slog.Any("strategies", svc.Strategies()),
		slog.Int("pools", len(p.pools)),
		slog.Int("targets", len(pc.Targets)))
	return p, nil
}

// Run acquires every configured target, hands results to sink and
// refreshes the SLO gauges.
func (p *Pipeline) Run(ctx context.Context, sink acquire.Sink) (*acquire.BatchStats, error) {
	reqs, err := p.Config.Requests()
	if err != nil {
		return nil, err
	}
	return p.RunRequests(ctx, reqs, sink)
}

// RunRequests acquires reqs and refreshes the SLO gauges.
func (p *Pipeline) RunRequests(ctx context.Context, reqs []*entity.AcquisitionRequest, sink acquire.Sink) (*acquire.BatchStats, error) {
	stats, err := p.Service.AcquireAll(ctx, reqs, sink)
	p.PublishSLO()
	return stats, err
}

// PublishSLO updates the SLO gauges from the current health snapshots.
func (p *Pipeline) PublishSLO() {
	byStrategy, open := StrategyTotals(p.Monitor.SnapshotAll())
	for name, c := range byStrategy {
		if c.Attempts == 0 {
			continue
		}
		slo.UpdateSuccessRatio(name, c.SuccessRate())
		slo.UpdateMeanLatency(name, c.AvgLatency.Seconds())
	}
	slo.UpdateOpenCircuits(open)
}

// StrategyTotals folds per-key snapshots into per-strategy counters and
// counts the open circuits. Mean latencies are weighted by attempts.
func StrategyTotals(snaps map[string]health.Snapshot) (map[string]health.Counters, int) {
	totals := make(map[string]health.Counters)
	open := 0
	for _, snap := range snaps {
		open += len(snap.OpenStrategies())
		for name, st := range snap.Strategies {
			t := totals[name]
			if n := t.Attempts + st.Attempts; n > 0 {
				t.AvgLatency = time.Duration((float64(t.AvgLatency)*float64(t.Attempts) +
					float64(st.AvgLatency)*float64(st.Attempts)) / float64(n))
				t.AvgLatencyMs = float64(t.AvgLatency) / float64(time.Millisecond)
			}
			t.Attempts += st.Attempts
			t.Successes += st.Successes
			t.Failures += st.Failures
			t.Rejections += st.Rejections
			t.Retries += st.Retries
			totals[name] = t
		}
	}
	return totals, open
}

// Pools returns the names of the worker pools, sorted.
func (p *Pipeline) Pools() []string {
	names := make([]string, 0, len(p.pools))
	for _, pool := range p.pools {
		names = append(names, pool.Name())
	}
	slices.Sort(names)
	return names
}

// Close shuts every pool down, waiting for leased workers until ctx ends.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	for _, pool := range p.pools {
		if err := pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.pools = nil
	return errors.Join(errs...)
}

func (p *Pipeline) closePools() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		p.logger.Warn("failed to close worker pools", slog.Any("error", err))
	}
}
