package health

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acquirer/internal/domain/entity"
	"acquirer/internal/resilience/circuitbreaker"
)

type fakeCircuits map[circuitbreaker.Key]circuitbreaker.State

func (f fakeCircuits) State(key circuitbreaker.Key) circuitbreaker.State {
	return f[key]
}

func TestMonitor_SnapshotUnknownKey(t *testing.T) {
	m := NewMonitor()
	_, ok := m.Snapshot("example.com")
	assert.False(t, ok)
	assert.Empty(t, m.SnapshotAll())
}

func TestMonitor_RecordAndSnapshot(t *testing.T) {
	circuits := fakeCircuits{
		{Target: "example.com", Strategy: "render"}: circuitbreaker.StateOpen,
	}
	m := NewMonitor(WithCircuitReader(circuits))

	m.Record(entity.NewFailureOutcome("example.com", "render", entity.ErrorKindNetwork, 3, 300*time.Millisecond, nil))
	m.Record(entity.NewSuccessOutcome("example.com", "fetch", 1, 100*time.Millisecond))
	m.Record(entity.NewRejectedOutcome("example.com", "render", entity.ErrorKindCircuitOpen, nil))
	m.Record(entity.NewSuccessOutcome("example.com", "fetch", 2, 200*time.Millisecond))

	snap, ok := m.Snapshot("example.com")
	require.True(t, ok)

	want := Snapshot{
		Key: "example.com",
		Counters: Counters{
			Attempts:      3,
			Successes:     2,
			Failures:      1,
			Rejections:    1,
			Retries:       3,
			AvgLatency:    200 * time.Millisecond,
			AvgLatencyMs:  200,
			ErrorKinds:    map[string]int64{"network": 1},
			LastErrorKind: "network",
		},
		Circuit: "open",
		Strategies: map[string]StrategySnapshot{
			"render": {
				Counters: Counters{
					Attempts:      1,
					Failures:      1,
					Rejections:    1,
					Retries:       2,
					AvgLatency:    300 * time.Millisecond,
					AvgLatencyMs:  300,
					ErrorKinds:    map[string]int64{"network": 1},
					LastErrorKind: "network",
				},
				Circuit: "open",
			},
			"fetch": {
				Counters: Counters{
					Attempts:     2,
					Successes:    2,
					Retries:      1,
					AvgLatency:   150 * time.Millisecond,
					AvgLatencyMs: 150,
				},
				Circuit: "closed",
			},
		},
	}

	ignoreTime := cmpopts.IgnoreFields(Counters{}, "LastOutcome")
	if diff := cmp.Diff(want, snap, ignoreTime); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, snap.LastOutcome.IsZero())
	assert.Equal(t, []string{"render"}, snap.OpenStrategies())
	assert.InDelta(t, 2.0/3.0, snap.SuccessRate(), 1e-9)
}

func TestMonitor_IncrementalMean(t *testing.T) {
	m := NewMonitor()
	latencies := []time.Duration{10, 20, 30, 40, 50}
	for _, l := range latencies {
		m.Record(entity.NewSuccessOutcome("k", "s", 1, l*time.Millisecond))
	}

	snap, _ := m.Snapshot("k")
	assert.Equal(t, 30*time.Millisecond, snap.AvgLatency)
}

func TestMonitor_WithoutCircuitReader(t *testing.T) {
	m := NewMonitor()
	m.Record(entity.NewSuccessOutcome("k", "s", 1, time.Millisecond))

	snap, _ := m.Snapshot("k")
	assert.Equal(t, "closed", snap.Circuit)
	assert.Equal(t, "closed", snap.Strategies["s"].Circuit)
}

func TestMonitor_ConcurrentRecord(t *testing.T) {
	m := NewMonitor()
	const goroutines, perGoroutine = 20, 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				m.Record(entity.NewFailureOutcome("shared", "render", entity.ErrorKindTimeout, 1, time.Millisecond, nil))
				_ = m.SnapshotAll()
			}
		}()
	}
	wg.Wait()

	snap, _ := m.Snapshot("shared")
	assert.Equal(t, int64(goroutines*perGoroutine), snap.Failures)
	assert.Equal(t, int64(goroutines*perGoroutine), snap.ErrorKinds["timeout"])
}

func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor()
	m.Record(entity.NewSuccessOutcome("a", "s", 1, time.Millisecond))
	m.Record(entity.NewSuccessOutcome("b", "s", 1, time.Millisecond))

	m.Reset("a")
	_, ok := m.Snapshot("a")
	assert.False(t, ok)
	assert.Len(t, m.SnapshotAll(), 1)

	m.ResetAll()
	assert.Empty(t, m.SnapshotAll())
}

func TestSnapshot_JSON(t *testing.T) {
	m := NewMonitor()
	m.Record(entity.NewSuccessOutcome("example.com", "fetch", 1, 5*time.Millisecond))
	snap, _ := m.Snapshot("example.com")

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "example.com", decoded["key"])
	assert.Equal(t, float64(1), decoded["attempts"])
	assert.Equal(t, float64(5), decoded["avg_latency_ms"])
	assert.Contains(t, decoded["strategies"], "fetch")
}
