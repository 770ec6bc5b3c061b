// Package fallback tries interchangeable strategies in order until one
// produces an acceptable result.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"acquirer/internal/domain/entity"
)

var (
	// ErrNoStrategies is returned when the chain is run without strategies.
	ErrNoStrategies = errors.New("no strategies to try")

	// ErrUnacceptableResult records a strategy that succeeded but whose
	// result was rejected by the acceptor, e.g. an empty page.
	ErrUnacceptableResult = errors.New("result not acceptable")
)

// Attempt runs one strategy. It returns the strategy's result, or an error
// whose kind (entity.KindOf) and attempt count (AttemptCounter) are
// reported in StrategyFailure.
type Attempt func(ctx context.Context, strategy string) (*entity.Result, error)

// Acceptor decides whether a result is good enough to stop the chain.
type Acceptor func(*entity.Result) bool

// NonEmpty accepts results with at least one item.
func NonEmpty(r *entity.Result) bool {
	return !r.Empty()
}

// AcceptAny accepts every successful result, including empty ones.
func AcceptAny(r *entity.Result) bool {
	return r != nil
}

// StrategyFailure is why one strategy did not produce the final result.
type StrategyFailure struct {
	Strategy string
	Kind     entity.ErrorKind
	Attempts int
	Err      error
}

// Error aggregates the failures of every strategy that was tried, in order.
type Error struct {
	Key      string
	Failures []StrategyFailure
	// Aborted is set when a failure stopped the chain before every strategy ran.
	Aborted bool
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all strategies failed for %s", e.Key)
	if e.Aborted {
		b.WriteString(" (aborted)")
	}
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s [%s]: %v", f.Strategy, f.Kind, f.Err)
	}
	return b.String()
}

// Unwrap exposes each strategy error to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// ErrorKind reports the kind of the failure that decided the outcome: the
// aborting failure, or the last one tried.
func (e *Error) ErrorKind() entity.ErrorKind {
	if len(e.Failures) == 0 {
		return entity.ErrorKindUnknown
	}
	return e.Failures[len(e.Failures)-1].Kind
}

// Strategies returns the names of the strategies tried, in order.
func (e *Error) Strategies() []string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Strategy)
	}
	return names
}

// AttemptCounter is implemented by errors that know how many tries were made.
type AttemptCounter interface {
	AttemptCount() int
}

// Chain runs strategies in order.
type Chain struct {
	accept Acceptor
	logger *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithAcceptor replaces the default NonEmpty acceptor.
func WithAcceptor(a Acceptor) Option {
	return func(c *Chain) { c.accept = a }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// New creates a Chain.
func New(opts ...Option) *Chain {
	c := &Chain{accept: NonEmpty, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run tries strategies strictly in order and returns the first acceptable
// result. Unacceptable results and failures advance the chain, except
// InvalidInput failures and caller cancellation, which stop it: no other
// strategy can fix malformed input. When nothing is accepted Run returns
// *Error listing every strategy tried.
func (c *Chain) Run(ctx context.Context, key string, strategies []string, attempt Attempt) (*entity.Result, error) {
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}

	agg := &Error{Key: key}
	for i, name := range strategies {
		if err := ctx.Err(); err != nil {
			kind := entity.ErrorKindTimeout
			if errors.Is(err, context.Canceled) {
				kind = entity.ErrorKindCanceled
			}
			agg.Failures = append(agg.Failures, StrategyFailure{Strategy: name, Kind: kind, Err: err})
			agg.Aborted = i < len(strategies)-1
			break
		}

		result, err := attempt(ctx, name)
		if err == nil {
			if c.accept(result) {
				return result, nil
			}
			attempts := 0
			if result != nil {
				attempts = result.Attempts
			}
			c.logger.Info("strategy result not accepted, trying next",
				slog.String("key", key),
				slog.String("strategy", name))
			agg.Failures = append(agg.Failures, StrategyFailure{
				Strategy: name,
				Kind:     entity.ErrorKindNone,
				Attempts: attempts,
				Err:      ErrUnacceptableResult,
			})
			continue
		}

		kind, ok := entity.KindOf(err)
		if !ok {
			kind = entity.ErrorKindUnknown
		}
		f := StrategyFailure{Strategy: name, Kind: kind, Err: err}
		var counter AttemptCounter
		if errors.As(err, &counter) {
			f.Attempts = counter.AttemptCount()
		}
		agg.Failures = append(agg.Failures, f)

		if kind == entity.ErrorKindInvalidInput || kind == entity.ErrorKindCanceled {
			agg.Aborted = i < len(strategies)-1
			c.logger.Warn("strategy failure aborts request",
				slog.String("key", key),
				slog.String("strategy", name),
				slog.String("kind", kind.String()),
				slog.Any("error", err))
			break
		}

		c.logger.Info("strategy failed, trying next",
			slog.String("key", key),
			slog.String("strategy", name),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
	}

	return nil, agg
}
