// Package workerpool bounds concurrent use of expensive acquisition
// resources. It is built on github.com/jackc/puddle/v2, whose acquire queue
// is FIFO, so waiting callers are served in arrival order.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"

	"acquirer/internal/domain/entity"
)

var (
	// ErrPoolClosed is returned by Checkout after Shutdown.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrExhausted is returned when no worker became available before the
	// deadline.
	ErrExhausted = errors.New("worker pool exhausted")

	// ErrCreateFailed is returned when the pool had room but the factory
	// could not build a worker.
	ErrCreateFailed = errors.New("worker creation failed")
)

// Worker is an opaque expensive resource, such as a browser session.
type Worker interface {
	io.Closer
}

// Factory creates a new worker.
type Factory func(ctx context.Context) (Worker, error)

// Config holds the configuration for a worker pool.
type Config struct {
	// MaxWorkers is the maximum number of workers checked out at once
	MaxWorkers int32 `yaml:"max_workers"`

	// AcquireTimeout bounds Checkout when the caller's context has no deadline.
	// Zero waits for as long as the context allows.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// DefaultConfig returns a default configuration for worker pools.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:     4,
		AcquireTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1, got %d", c.MaxWorkers)
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("acquire timeout must not be negative, got %v", c.AcquireTimeout)
	}
	return nil
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Name        string
	Max         int32
	Total       int32
	Active      int32
	Idle        int32
	Checkouts   int64
	Canceled    int64
	Invalidated int64
}

// Pool hands out workers to one caller at a time.
type Pool struct {
	name   string
	cfg    Config
	pool   *puddle.Pool[Worker]
	logger *slog.Logger

	invalidated atomic.Int64
	observe     func(name string, wait time.Duration)
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for worker lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithWaitObserver registers a callback receiving every successful checkout's wait time.
func WithWaitObserver(fn func(name string, wait time.Duration)) Option {
	return func(p *Pool) { p.observe = fn }
}

// New creates a pool. Workers are created lazily by create and closed
// exactly once, either on invalidation or when the pool shuts down.
func New(name string, cfg Config, create Factory, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker pool %s: %w", name, err)
	}
	if create == nil {
		return nil, fmt.Errorf("worker pool %s: factory is required", name)
	}

	p := &Pool{name: name, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	pool, err := puddle.NewPool(&puddle.Config[Worker]{
		Constructor: func(ctx context.Context) (Worker, error) {
			w, err := create(ctx)
			if err != nil {
				return nil, err
			}
			p.logger.Debug("worker created", slog.String("pool", name))
			return w, nil
		},
		Destructor: func(w Worker) {
			if err := w.Close(); err != nil {
				p.logger.Warn("failed to close worker",
					slog.String("pool", name),
					slog.Any("error", err))
			}
		},
		MaxSize: cfg.MaxWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("worker pool %s: %w", name, err)
	}
	p.pool = pool
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Lease is exclusive use of one worker. It must be ended with Release or
// Invalidate on every path; only the first call takes effect.
type Lease struct {
	res    *puddle.Resource[Worker]
	worker Worker
	pool   *Pool
	once   sync.Once
}

// Checkout returns an idle worker, creates one if the pool has room, or
// waits in FIFO order for one to be released. Waiting ends with an error of
// kind ResourceExhausted when ctx (or AcquireTimeout) expires, and so does a
// factory failure.
func (p *Pool) Checkout(ctx context.Context) (*Lease, error) {
	if _, ok := ctx.Deadline(); !ok && p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			return nil, entity.WithKind(entity.ErrorKindResourceExhausted, ErrPoolClosed)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, entity.WithKind(entity.ErrorKindResourceExhausted,
				fmt.Errorf("%w: %s after %v: %w", ErrExhausted, p.name, time.Since(start).Round(time.Millisecond), err))
		case errors.Is(err, context.Canceled):
			return nil, entity.WithKind(entity.ErrorKindCanceled, fmt.Errorf("checkout from %s: %w", p.name, err))
		default:
			// No worker ever ran, so this is a rejection rather than a
			// failure of the target.
			return nil, entity.WithKind(entity.ErrorKindResourceExhausted,
				fmt.Errorf("%w: %s: %w", ErrCreateFailed, p.name, err))
		}
	}

	if p.observe != nil {
		p.observe(p.name, time.Since(start))
	}
	return &Lease{res: res, worker: res.Value(), pool: p}, nil
}

// Worker returns the leased worker.
func (l *Lease) Worker() Worker {
	return l.worker
}

// Release returns the worker to the pool for reuse.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.res.Release()
	})
}

// Invalidate closes the worker instead of returning it. The pool creates a
// replacement on a later checkout.
func (l *Lease) Invalidate() {
	l.once.Do(func() {
		l.pool.invalidated.Add(1)
		l.pool.logger.Info("worker invalidated", slog.String("pool", l.pool.name))
		l.res.Destroy()
	})
}

// Shutdown rejects further checkouts and closes every worker exactly once.
// Workers still leased are closed when they are released. Shutdown waits
// for that until ctx ends.
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pool.Close()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool closed", slog.String("pool", p.name))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown %s: %w", p.name, ctx.Err())
	}
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() Stats {
	s := p.pool.Stat()
	return Stats{
		Name:        p.name,
		Max:         s.MaxResources(),
		Total:       s.TotalResources(),
		Active:      s.AcquiredResources(),
		Idle:        s.IdleResources(),
		Checkouts:   s.AcquireCount(),
		Canceled:    s.CanceledAcquireCount(),
		Invalidated: p.invalidated.Load(),
	}
}
