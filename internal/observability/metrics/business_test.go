package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAttempt(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		result   string
		kind     string
	}{
		{name: "success", strategy: "test-attempt-render", result: "success", kind: "none"},
		{name: "network failure", strategy: "test-attempt-render", result: "network", kind: "network"},
		{name: "circuit open", strategy: "test-attempt-fetch", result: "circuit_open", kind: "circuit_open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(AcquisitionAttemptsTotal.WithLabelValues(tt.strategy, tt.result, tt.kind))
			RecordAttempt(tt.strategy, tt.result, tt.kind, 150*time.Millisecond)
			after := testutil.ToFloat64(AcquisitionAttemptsTotal.WithLabelValues(tt.strategy, tt.result, tt.kind))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestRecordRetries(t *testing.T) {
	const strategy = "test-retries"

	RecordRetries(strategy, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(AcquisitionRetriesTotal.WithLabelValues(strategy)))

	RecordRetries(strategy, 3)
	assert.Equal(t, 2.0, testutil.ToFloat64(AcquisitionRetriesTotal.WithLabelValues(strategy)))

	assert.NotPanics(t, func() { RecordRetries(strategy, 0) })
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(AcquisitionRequestsTotal.WithLabelValues("success"))
	RecordRequest("success", time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(AcquisitionRequestsTotal.WithLabelValues("success")))
}

func TestRecordItems(t *testing.T) {
	const strategy = "test-items"

	RecordItems(strategy, 0)
	RecordItems(strategy, 5)
	RecordItems(strategy, -1)
	assert.Equal(t, 5.0, testutil.ToFloat64(AcquisitionItemsTotal.WithLabelValues(strategy)))
}

func TestRecordBatch(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
		failed    int
		result    string
	}{
		{name: "all succeeded", succeeded: 3, failed: 0, result: "success"},
		{name: "some failed", succeeded: 2, failed: 1, result: "partial"},
		{name: "all failed", succeeded: 0, failed: 4, result: "failure"},
		{name: "empty batch", succeeded: 0, failed: 0, result: "success"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(BatchRunsTotal.WithLabelValues(tt.result))
			RecordBatch(tt.succeeded, tt.failed, 2*time.Second)
			assert.Equal(t, before+1, testutil.ToFloat64(BatchRunsTotal.WithLabelValues(tt.result)))
		})
	}
}

func TestCircuitMetrics(t *testing.T) {
	SetCircuitState("test.example.com", "render", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test.example.com", "render")))

	SetCircuitState("test.example.com", "render", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("test.example.com", "render")))

	before := testutil.ToFloat64(CircuitBreakerTransitionsTotal.WithLabelValues("test-cb", "closed", "open"))
	RecordCircuitTransition("test-cb", "closed", "open")
	assert.Equal(t, before+1, testutil.ToFloat64(CircuitBreakerTransitionsTotal.WithLabelValues("test-cb", "closed", "open")))
}

func TestWorkerPoolMetrics(t *testing.T) {
	UpdateWorkerPoolStats("test-pool", 3, 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(WorkerPoolActive.WithLabelValues("test-pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(WorkerPoolIdle.WithLabelValues("test-pool")))

	assert.NotPanics(t, func() {
		RecordCheckoutWait("test-pool", 25*time.Millisecond)
	})
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))
	RecordHTTPRequest("GET", "/health", "200", 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
}
