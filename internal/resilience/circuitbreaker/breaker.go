package circuitbreaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Allow when the circuit rejects the call.
var ErrOpen = errors.New("circuit breaker is open")

// Stats is a point-in-time view of one circuit.
type Stats struct {
	State               State
	ConsecutiveFailures uint32
	LastFailure         time.Time
	OpenSince           time.Time
}

// Resolver returns the configuration for a target key.
type Resolver func(target string) Config

// StateChangeFunc is called after a circuit changes state.
type StateChangeFunc func(key Key, from, to State)

// Breaker keeps one circuit per Key. Circuits are created on first use and
// live for the lifetime of the Breaker. A Breaker is safe for concurrent use;
// updates for the same key are serialized.
type Breaker struct {
	mu       sync.RWMutex
	circuits map[Key]*circuit

	resolve  Resolver
	onChange StateChangeFunc
	logger   *slog.Logger
}

type circuit struct {
	cb *gobreaker.TwoStepCircuitBreaker

	mu sync.Mutex
	// state mirrors the last transition reported by gobreaker. Reading it
	// never advances an expired open circuit.
	state       State
	failures    uint32
	lastFailure time.Time
	openSince   time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithResolver sets per-target configuration. Invalid configurations fall
// back to the Breaker's default.
func WithResolver(r Resolver) Option {
	return func(b *Breaker) { b.resolve = r }
}

// WithStateChange registers a state transition hook.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) { b.logger = logger }
}

// New creates a Breaker whose circuits use cfg unless a Resolver says otherwise.
func New(cfg Config, opts ...Option) *Breaker {
	if err := cfg.Validate(); err != nil {
		cfg = DefaultConfig()
	}
	b := &Breaker{
		circuits: make(map[Key]*circuit),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolve == nil {
		b.resolve = func(string) Config { return cfg }
	} else {
		custom := b.resolve
		b.resolve = func(target string) Config {
			c := custom(target)
			if err := c.Validate(); err != nil {
				b.logger.Warn("invalid circuit breaker config, using default",
					slog.String("target", target),
					slog.Any("error", err))
				return cfg
			}
			return c
		}
	}
	return b
}

func (b *Breaker) get(key Key) *circuit {
	b.mu.RLock()
	c, ok := b.circuits[key]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[key]; ok {
		return c
	}
	c = b.newCircuit(key, b.resolve(key.Target))
	b.circuits[key] = c
	return c
}

func (b *Breaker) newCircuit(key Key, cfg Config) *circuit {
	c := &circuit{}
	threshold := cfg.FailureThreshold
	c.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        key.String(),
		MaxRequests: 1,
		// Interval 0 keeps consecutive failures until a success resets them.
		Interval: 0,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.mu.Lock()
			c.state = fromGobreaker(to)
			if to == gobreaker.StateOpen {
				c.openSince = time.Now()
			}
			c.mu.Unlock()
			b.logger.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			if b.onChange != nil {
				b.onChange(key, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})
	return c
}

// Ticket is the permission to make one attempt. Exactly one of Success,
// Failure or Abandon must be called; later calls are ignored.
type Ticket struct {
	key      Key
	c        *circuit
	done     func(success bool)
	halfOpen bool
	once     sync.Once
}

// Allow asks whether an attempt for key may proceed. Open circuits return
// ErrOpen until their timeout has elapsed; the first call after that moves
// the circuit to half-open and is admitted as the single probe.
func (b *Breaker) Allow(key Key) (*Ticket, error) {
	c := b.get(key)
	state := c.cb.State()
	done, err := c.cb.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOpen, key)
	}
	return &Ticket{key: key, c: c, done: done, halfOpen: state == gobreaker.StateHalfOpen}, nil
}

// Success records a successful attempt and closes a half-open circuit.
func (t *Ticket) Success() {
	t.once.Do(func() {
		t.c.mu.Lock()
		t.c.failures = 0
		t.c.mu.Unlock()
		t.done(true)
	})
}

// Failure records a failed attempt. Reaching the threshold, or failing a
// half-open probe, opens the circuit.
func (t *Ticket) Failure() {
	t.once.Do(func() {
		t.c.mu.Lock()
		t.c.failures++
		t.c.lastFailure = time.Now()
		t.c.mu.Unlock()
		t.done(false)
	})
}

// Abandon releases a ticket whose attempt never judged the target, for
// example because the caller cancelled. A closed circuit is left untouched;
// an abandoned half-open probe counts as a failure so the circuit does not
// stay wedged waiting for a verdict.
func (t *Ticket) Abandon() {
	if t.halfOpen {
		t.Failure()
		return
	}
	t.once.Do(func() {})
}

// Ready reports whether Allow would currently admit a call for key, without
// consuming the half-open probe.
func (b *Breaker) Ready(key Key) bool {
	c := b.get(key)
	switch c.cb.State() {
	case gobreaker.StateOpen:
		return false
	case gobreaker.StateHalfOpen:
		return c.cb.Counts().Requests == 0
	default:
		return true
	}
}

// State returns the last recorded state of key. Unknown keys are closed.
// It is a pure read: an open circuit whose timeout has passed stays open
// here until Ready or Allow moves it to half-open.
func (b *Breaker) State(key Key) State {
	b.mu.RLock()
	c, ok := b.circuits[key]
	b.mu.RUnlock()
	if !ok {
		return StateClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns the circuit details of key.
func (b *Breaker) Stats(key Key) Stats {
	b.mu.RLock()
	c, ok := b.circuits[key]
	b.mu.RUnlock()
	if !ok {
		return Stats{State: StateClosed}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.state
	s := Stats{
		State:               state,
		ConsecutiveFailures: c.failures,
		LastFailure:         c.lastFailure,
	}
	if state != StateClosed {
		s.OpenSince = c.openSince
	}
	return s
}

// Keys returns every key that has a circuit.
func (b *Breaker) Keys() []Key {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]Key, 0, len(b.circuits))
	for k := range b.circuits {
		keys = append(keys, k)
	}
	return keys
}

// Reset forgets the circuit for key; the next call starts closed.
func (b *Breaker) Reset(key Key) {
	b.mu.Lock()
	delete(b.circuits, key)
	b.mu.Unlock()
}
