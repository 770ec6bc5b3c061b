package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"acquirer/internal/usecase/health"
)

type staticSnapshots map[string]health.Snapshot

func (s staticSnapshots) SnapshotAll() map[string]health.Snapshot { return s }

func newTestHealthServer(snaps staticSnapshots) *HealthServer {
	return NewHealthServer("127.0.0.1:0", snaps, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthServer_Liveness(t *testing.T) {
	server := newTestHealthServer(nil)

	rec := get(t, server.Handler(), "/health")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	var response healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
}

func TestHealthServer_Readiness(t *testing.T) {
	server := newTestHealthServer(nil)
	handler := server.Handler()

	if rec := get(t, handler, "/health/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 before ready, got %d", rec.Code)
	}

	server.SetReady(true)
	if rec := get(t, handler, "/health/ready"); rec.Code != http.StatusOK {
		t.Errorf("expected status 200 when ready, got %d", rec.Code)
	}

	server.SetReady(false)
	if rec := get(t, handler, "/health/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 after not ready, got %d", rec.Code)
	}
}

func TestHealthServer_AcquisitionHealthy(t *testing.T) {
	server := newTestHealthServer(staticSnapshots{
		"example.com": {
			Key:     "example.com",
			Circuit: "closed",
			Strategies: map[string]health.StrategySnapshot{
				"fetch": {Circuit: "closed", Counters: health.Counters{Attempts: 2, Successes: 2}},
			},
		},
	})

	rec := get(t, server.Handler(), "/health/acquisition")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var response acquisitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
	if len(response.Snapshots) != 1 || response.Snapshots[0].Key != "example.com" {
		t.Errorf("unexpected snapshots: %+v", response.Snapshots)
	}
	if got := response.Snapshots[0].Strategies["fetch"].Successes; got != 2 {
		t.Errorf("expected 2 successes, got %d", got)
	}
}

func TestHealthServer_AcquisitionDegraded(t *testing.T) {
	server := newTestHealthServer(staticSnapshots{
		"b.example": {
			Key:     "b.example",
			Circuit: "open",
			Strategies: map[string]health.StrategySnapshot{
				"render": {Circuit: "open"},
				"fetch":  {Circuit: "closed"},
			},
		},
		"a.example": {
			Key:        "a.example",
			Circuit:    "closed",
			Strategies: map[string]health.StrategySnapshot{"fetch": {Circuit: "closed"}},
		},
	})

	rec := get(t, server.Handler(), "/health/acquisition")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	var response acquisitionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Status != "degraded" {
		t.Errorf("expected status 'degraded', got '%s'", response.Status)
	}
	if len(response.OpenKeys) != 1 || response.OpenKeys[0] != "b.example" {
		t.Errorf("expected open keys [b.example], got %v", response.OpenKeys)
	}
	if len(response.Snapshots) != 2 || response.Snapshots[0].Key != "a.example" {
		t.Errorf("expected snapshots sorted by key, got %+v", response.Snapshots)
	}
}

func TestHealthServer_MethodNotAllowed(t *testing.T) {
	server := newTestHealthServer(nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
}

func TestHealthServer_GracefulShutdown(t *testing.T) {
	server := newTestHealthServer(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("expected http.ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
