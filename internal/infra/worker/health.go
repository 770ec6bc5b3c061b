package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"acquirer/internal/usecase/health"
)

// SnapshotSource provides acquisition health snapshots.
type SnapshotSource interface {
	SnapshotAll() map[string]health.Snapshot
}

// HealthServer serves liveness, readiness and acquisition health.
//
// Endpoints:
//   - GET /health: always 200 while the process runs
//   - GET /health/ready: 200 once SetReady(true) was called, 503 before
//   - GET /health/acquisition: per-key snapshots; 503 when any circuit is open
type HealthServer struct {
	addr      string
	logger    *slog.Logger
	isReady   atomic.Bool
	snapshots SnapshotSource
	server    *http.Server
}

type healthResponse struct {
	Status string `json:"status"`
}

type acquisitionResponse struct {
	Status    string            `json:"status"`
	OpenKeys  []string          `json:"open_keys,omitempty"`
	Snapshots []health.Snapshot `json:"snapshots"`
}

// NewHealthServer creates a server on addr. The server starts not ready.
func NewHealthServer(addr string, snapshots SnapshotSource, logger *slog.Logger) *HealthServer {
	return &HealthServer{
		addr:      addr,
		logger:    logger,
		snapshots: snapshots,
	}
}

// Handler returns the HTTP handler serving the health endpoints.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	mux.HandleFunc("GET /health/acquisition", h.handleAcquisition)
	return mux
}

// Start serves until ctx is done, then shuts down gracefully. It returns
// http.ErrServerClosed after a clean shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady marks the worker ready or not ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

func (h *HealthServer) handleAcquisition(w http.ResponseWriter, _ *http.Request) {
	all := h.snapshots.SnapshotAll()

	resp := acquisitionResponse{Status: "ok", Snapshots: make([]health.Snapshot, 0, len(all))}
	for key, snap := range all {
		resp.Snapshots = append(resp.Snapshots, snap)
		if len(snap.OpenStrategies()) > 0 {
			resp.OpenKeys = append(resp.OpenKeys, key)
		}
	}
	sort.Slice(resp.Snapshots, func(i, j int) bool { return resp.Snapshots[i].Key < resp.Snapshots[j].Key })
	sort.Strings(resp.OpenKeys)

	status := http.StatusOK
	if len(resp.OpenKeys) > 0 {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
