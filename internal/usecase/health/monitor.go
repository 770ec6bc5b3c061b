// Package health aggregates acquisition outcomes into per-target health
// snapshots.
package health

import (
	"sort"
	"sync"
	"time"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/circuitbreaker"
)

// CircuitReader exposes circuit states to the monitor.
type CircuitReader interface {
	State(key circuitbreaker.Key) circuitbreaker.State
}

// Counters are the aggregated numbers for a key or a strategy within a key.
type Counters struct {
	// Attempts counts strategy invocations that actually ran.
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	// Rejections counts invocations skipped before running (open circuit,
	// exhausted pool). They are neither attempts nor failures.
	Rejections int64 `json:"rejections"`
	// Retries counts extra tries made by the retry policy.
	Retries       int64            `json:"retries"`
	AvgLatency    time.Duration    `json:"-"`
	AvgLatencyMs  float64          `json:"avg_latency_ms"`
	ErrorKinds    map[string]int64 `json:"error_kinds,omitempty"`
	LastErrorKind string           `json:"last_error_kind,omitempty"`
	LastOutcome   time.Time        `json:"last_outcome,omitzero"`
}

// SuccessRate returns successes over attempts, or 0 without attempts.
func (c Counters) SuccessRate() float64 {
	if c.Attempts == 0 {
		return 0
	}
	return float64(c.Successes) / float64(c.Attempts)
}

// StrategySnapshot is the health of one strategy against one key.
type StrategySnapshot struct {
	Counters
	Circuit string `json:"circuit"`
}

// Snapshot is the read-only health of one target key.
type Snapshot struct {
	Key string `json:"key"`
	Counters
	// Circuit is the most severe circuit state among the key's strategies.
	Circuit    string                      `json:"circuit"`
	Strategies map[string]StrategySnapshot `json:"strategies"`
}

// OpenStrategies lists strategies whose circuit is open, sorted.
func (s Snapshot) OpenStrategies() []string {
	var open []string
	for name, st := range s.Strategies {
		if st.Circuit == circuitbreaker.StateOpen.String() {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

type counters struct {
	attempts, successes, failures, rejections, retries int64
	avgLatency                                         float64
	kinds                                              map[entity.ErrorKind]int64
	lastKind                                           entity.ErrorKind
	lastOutcome                                        time.Time
}

func (c *counters) add(o entity.Outcome) {
	if o.Timestamp.After(c.lastOutcome) {
		c.lastOutcome = o.Timestamp
	}
	if !o.Success && o.Kind.Rejection() {
		c.rejections++
		return
	}

	c.attempts++
	if o.Attempts > 1 {
		c.retries += int64(o.Attempts - 1)
	}
	// Incremental mean: no latency history is kept.
	c.avgLatency += (float64(o.Latency) - c.avgLatency) / float64(c.attempts)

	if o.Success {
		c.successes++
		return
	}
	c.failures++
	if c.kinds == nil {
		c.kinds = make(map[entity.ErrorKind]int64)
	}
	c.kinds[o.Kind]++
	c.lastKind = o.Kind
}

func (c *counters) export() Counters {
	out := Counters{
		Attempts:     c.attempts,
		Successes:    c.successes,
		Failures:     c.failures,
		Rejections:   c.rejections,
		Retries:      c.retries,
		AvgLatency:   time.Duration(c.avgLatency),
		AvgLatencyMs: c.avgLatency / float64(time.Millisecond),
		LastOutcome:  c.lastOutcome,
	}
	if c.lastKind != entity.ErrorKindNone {
		out.LastErrorKind = c.lastKind.String()
	}
	if len(c.kinds) > 0 {
		out.ErrorKinds = make(map[string]int64, len(c.kinds))
		for k, n := range c.kinds {
			out.ErrorKinds[k.String()] = n
		}
	}
	return out
}

type keyStats struct {
	mu         sync.Mutex
	total      counters
	strategies map[string]*counters
}

// Monitor aggregates outcomes per target key and per strategy. It is safe
// for concurrent use; snapshots are computed on demand.
type Monitor struct {
	mu       sync.RWMutex
	keys     map[string]*keyStats
	circuits CircuitReader
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCircuitReader lets snapshots report circuit states.
func WithCircuitReader(r CircuitReader) Option {
	return func(m *Monitor) { m.circuits = r }
}

// NewMonitor creates an empty Monitor.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{keys: make(map[string]*keyStats)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) stats(key string) *keyStats {
	m.mu.RLock()
	ks, ok := m.keys[key]
	m.mu.RUnlock()
	if ok {
		return ks
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ks, ok := m.keys[key]; ok {
		return ks
	}
	ks = &keyStats{strategies: make(map[string]*counters)}
	m.keys[key] = ks
	return ks
}

// Record adds an outcome to the counters of its key and strategy.
func (m *Monitor) Record(o entity.Outcome) {
	ks := m.stats(o.Key)

	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.total.add(o)
	sc, ok := ks.strategies[o.Strategy]
	if !ok {
		sc = &counters{}
		ks.strategies[o.Strategy] = sc
	}
	sc.add(o)
}

// Snapshot returns the health of key. The boolean is false when nothing
// was recorded for key.
func (m *Monitor) Snapshot(key string) (Snapshot, bool) {
	m.mu.RLock()
	ks, ok := m.keys[key]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return m.snapshot(key, ks), true
}

// SnapshotAll returns the health of every recorded key.
func (m *Monitor) SnapshotAll() map[string]Snapshot {
	m.mu.RLock()
	keys := make(map[string]*keyStats, len(m.keys))
	for k, ks := range m.keys {
		keys[k] = ks
	}
	m.mu.RUnlock()

	out := make(map[string]Snapshot, len(keys))
	for k, ks := range keys {
		out[k] = m.snapshot(k, ks)
	}
	return out
}

func (m *Monitor) snapshot(key string, ks *keyStats) Snapshot {
	ks.mu.Lock()
	snap := Snapshot{
		Key:        key,
		Counters:   ks.total.export(),
		Strategies: make(map[string]StrategySnapshot, len(ks.strategies)),
	}
	names := make([]string, 0, len(ks.strategies))
	for name, sc := range ks.strategies {
		snap.Strategies[name] = StrategySnapshot{Counters: sc.export()}
		names = append(names, name)
	}
	ks.mu.Unlock()

	// Circuit states are read outside the key lock.
	worst := circuitbreaker.StateClosed
	for _, name := range names {
		state := circuitbreaker.StateClosed
		if m.circuits != nil {
			state = m.circuits.State(circuitbreaker.Key{Target: key, Strategy: name})
		}
		st := snap.Strategies[name]
		st.Circuit = state.String()
		snap.Strategies[name] = st
		if severity(state) > severity(worst) {
			worst = state
		}
	}
	snap.Circuit = worst.String()
	return snap
}

func severity(s circuitbreaker.State) int {
	switch s {
	case circuitbreaker.StateOpen:
		return 2
	case circuitbreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// Reset forgets everything recorded for key.
func (m *Monitor) Reset(key string) {
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
}

// ResetAll forgets every key.
func (m *Monitor) ResetAll() {
	m.mu.Lock()
	m.keys = make(map[string]*keyStats)
	m.mu.Unlock()
}
