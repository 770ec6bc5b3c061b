// Package retry provides retry logic with exponential backoff and jitter.
// It helps handle transient failures gracefully by automatically retrying failed operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"acquirer/internal/domain/entity"
)

// ErrDeadlineTooClose is returned when the next retry would start after the
// context deadline.
var ErrDeadlineTooClose = errors.New("retry deadline too close")

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first one
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration `yaml:"base_delay"`

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the multiplier for exponential backoff
	Multiplier float64 `yaml:"multiplier"`

	// JitterFraction is the fraction of delay to add as random jitter (0.0 to 1.0)
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// FeedFetchConfig returns configuration optimized for syndication feeds.
// Aggressive retry for transient network issues.
func FeedFetchConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// AIAPIConfig returns configuration optimized for translation and speech APIs.
// Moderate retry due to cost considerations.
func AIAPIConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   2 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// WebScraperConfig returns configuration optimized for web scraping.
// Moderate retry for network issues and transient site failures.
func WebScraperConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("base delay must not be negative, got %v", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay (%v) must be >= base delay (%v)", c.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return fmt.Errorf("multiplier must be >= 1, got %v", c.Multiplier)
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return fmt.Errorf("jitter fraction must be within [0, 1], got %v", c.JitterFraction)
	}
	return nil
}

// Backoff returns the un-jittered delay that follows the given failed
// attempt (1-based): InitialDelay * Multiplier^(attempt-1), capped at
// MaxDelay. The product is computed in floating point so large attempt
// numbers saturate at MaxDelay instead of overflowing.
func (c Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := c.Multiplier
	if mult == 0 {
		mult = 2.0
	}

	d := float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if math.IsNaN(d) || math.IsInf(d, 0) || d >= float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Error is returned by Execute when the operation did not succeed.
type Error struct {
	Attempts int
	Kind     entity.ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind returns the classification of the last failure.
func (e *Error) ErrorKind() entity.ErrorKind { return e.Kind }

// AttemptCount returns how many times the operation ran.
func (e *Error) AttemptCount() int { return e.Attempts }

// Policy runs operations with retries according to a Config.
// A Policy is safe for concurrent use.
type Policy struct {
	cfg    Config
	logger *slog.Logger
	jitter func() float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) { p.logger = logger }
}

// WithRandom replaces the jitter source; fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(p *Policy) { p.jitter = fn }
}

// New builds a Policy. Invalid configurations fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Policy {
	p := &Policy{
		cfg:    cfg,
		logger: slog.Default(),
		// #nosec G404 -- Using math/rand is acceptable for jitter calculation.
		// Cryptographic randomness is not required for retry backoff jitter.
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.cfg.Validate(); err != nil {
		p.logger.Warn("invalid retry config, using defaults", slog.Any("error", err))
		p.cfg = DefaultConfig()
	}
	return p
}

// Config returns the effective configuration.
func (p *Policy) Config() Config { return p.cfg }

// Execute runs op until it succeeds, a failure is classified as not
// retryable, the attempts are used up, or ctx ends. It returns the number of
// attempts made. Failures are reported as *Error. A nil classify uses
// DefaultClassifier.
//
// Execute stops scheduling attempts once the deadline of ctx has passed or
// would pass during the next backoff wait, and reports a Timeout failure.
func (p *Policy) Execute(ctx context.Context, op func(ctx context.Context) error, classify Classifier) (int, error) {
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error
	lastKind := entity.ErrorKindUnknown

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, contextError(attempt-1, err, lastErr)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return attempt, nil
		}

		// The caller's deadline or cancellation wins over the operation's
		// own view of the failure.
		if err := ctx.Err(); err != nil {
			return attempt, contextError(attempt, err, lastErr)
		}

		c := classify(lastErr)
		lastKind = c.Kind
		if !c.Retryable {
			if c.Kind == entity.ErrorKindUnknown {
				p.logger.Warn("unclassified error, aborting",
					slog.Int("attempt", attempt),
					slog.Any("error", lastErr))
			} else {
				p.logger.Debug("non-retryable error, aborting",
					slog.Int("attempt", attempt),
					slog.String("kind", c.Kind.String()),
					slog.Any("error", lastErr))
			}
			return attempt, &Error{Attempts: attempt, Kind: c.Kind, Err: lastErr}
		}

		// Don't wait after last attempt
		if attempt == p.cfg.MaxAttempts {
			break
		}

		delay := p.delay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			return attempt, &Error{
				Attempts: attempt,
				Kind:     entity.ErrorKindTimeout,
				Err:      fmt.Errorf("%w: next attempt in %v: %w", ErrDeadlineTooClose, delay, lastErr),
			}
		}

		p.logger.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("kind", c.Kind.String()),
			slog.Any("error", lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt, contextError(attempt, ctx.Err(), lastErr)
		}
	}

	return p.cfg.MaxAttempts, &Error{
		Attempts: p.cfg.MaxAttempts,
		Kind:     lastKind,
		Err:      fmt.Errorf("max retry attempts (%d) exceeded: %w", p.cfg.MaxAttempts, lastErr),
	}
}

func (p *Policy) delay(attempt int) time.Duration {
	d := p.cfg.Backoff(attempt)
	if p.cfg.JitterFraction <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(p.jitter()*float64(d)*p.cfg.JitterFraction)
}

func contextError(attempts int, ctxErr, lastErr error) *Error {
	kind := entity.ErrorKindTimeout
	if errors.Is(ctxErr, context.Canceled) {
		kind = entity.ErrorKindCanceled
	}
	err := fmt.Errorf("retry aborted: %w", ctxErr)
	if lastErr != nil {
		err = fmt.Errorf("retry aborted: %w (last error: %w)", ctxErr, lastErr)
	}
	return &Error{Attempts: attempts, Kind: kind, Err: err}
}
