// Command worker acquires the configured targets on a cron schedule and
// serves metrics, HTTP health endpoints and the gRPC health service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"google.golang.org/grpc"

	"acquirer/internal/config"
	"acquirer/internal/infra/fetcher"
	"acquirer/internal/infra/pipeline"
	"acquirer/internal/infra/provider"
	"acquirer/internal/infra/sink"
	workerPkg "acquirer/internal/infra/worker"
	grpciface "acquirer/internal/interface/grpc"
	"acquirer/internal/observability/logging"
	"acquirer/internal/usecase/acquire"
)

const healthReportInterval = 15 * time.Second

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fail-open: invalid values fall back to defaults and are reported.
	workerMetrics := workerPkg.NewWorkerMetrics(prometheus.DefaultRegisterer)
	workerConfig := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("batch_timeout", workerConfig.BatchTimeout),
		slog.Int("parallelism", workerConfig.Parallelism),
		slog.Int("health_port", workerConfig.HealthPort),
		slog.Int("metrics_port", workerConfig.MetricsPort),
		slog.Int("grpc_health_port", workerConfig.GRPCHealthPort))

	p, err := buildPipeline(logger, workerConfig)
	if err != nil {
		logger.Error("failed to build acquisition pipeline", slog.String("error", logging.SanitizeError(err)))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.Close(shutdownCtx); err != nil {
			logger.Error("failed to close pipeline", slog.Any("error", err))
		}
	}()

	startMetricsServer(ctx, logger, workerConfig.MetricsPort)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, p.Monitor, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	if err := startGRPCHealth(ctx, logger, workerConfig.GRPCHealthPort, p); err != nil {
		logger.Error("failed to start grpc health server", slog.Any("error", err))
		os.Exit(1)
	}

	runCronWorker(ctx, logger, p, workerConfig, workerMetrics, healthServer)
}

// buildPipeline loads the pipeline file and the fetch and provider
// settings from the environment.
func buildPipeline(logger *slog.Logger, cfg *workerPkg.WorkerConfig) (*pipeline.Pipeline, error) {
	pc, err := config.LoadPipelineConfig(cfg.PipelineConfig)
	if err != nil {
		return nil, err
	}

	fetchConfig, warnings := fetcher.LoadConfigFromEnv()
	openaiConfig, openaiWarnings := provider.LoadOpenAIConfig()
	claudeConfig, claudeWarnings := provider.LoadClaudeConfig()
	warnings = append(warnings, openaiWarnings...)
	warnings = append(warnings, claudeWarnings...)
	for _, w := range warnings {
		logger.Warn("Configuration fallback applied", slog.String("warning", w))
	}

	return pipeline.Build(pipeline.Settings{
		Pipeline:    pc,
		Fetch:       fetchConfig,
		OpenAI:      openaiConfig,
		Claude:      claudeConfig,
		Parallelism: cfg.Parallelism,
	}, pipeline.WithLogger(logger))
}

// startGRPCHealth serves the gRPC health service until ctx is done.
func startGRPCHealth(ctx context.Context, logger *slog.Logger, port int, p *pipeline.Pipeline) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}

	server := grpc.NewServer()
	reporter := grpciface.NewHealthReporter(p.Monitor, p.Service.Strategies(), logger)
	reporter.Register(server)

	go reporter.Run(ctx, healthReportInterval)
	go func() {
		logger.Info("grpc health server starting", slog.Int("port", port))
		if err := server.Serve(lis); err != nil {
			logger.Error("grpc health server failed", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		server.GracefulStop()
		logger.Info("grpc health server stopped")
	}()
	return nil
}

// runCronWorker schedules batch runs and blocks until ctx is done.
func runCronWorker(ctx context.Context, logger *slog.Logger, p *pipeline.Pipeline, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, healthServer *workerPkg.HealthServer) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	var running atomic.Bool
	_, err = c.AddFunc(cfg.CronSchedule, func() {
		if !running.CompareAndSwap(false, true) {
			logger.Warn("previous batch still running, skipping")
			metrics.RecordSkipped()
			return
		}
		defer running.Store(false)
		runBatch(ctx, logger, p, cfg, metrics)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Int("targets", len(p.Config.Targets)))

	<-ctx.Done()
	healthServer.SetReady(false)
	logger.Info("worker stopping, waiting for running batch")

	select {
	case <-c.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn("running batch did not finish in time")
	}
}

// runBatch acquires every configured target once.
func runBatch(ctx context.Context, logger *slog.Logger, p *pipeline.Pipeline, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	start := time.Now()
	logger.Info("batch started", slog.Int("targets", len(p.Config.Targets)))

	ctx, cancel := context.WithTimeout(ctx, cfg.BatchTimeout)
	defer cancel()

	out, closeOut, err := openSink(cfg.OutputPath)
	if err != nil {
		logger.Error("failed to open output", slog.String("path", cfg.OutputPath), slog.Any("error", err))
		metrics.RecordJob("failure", time.Since(start), 0, 0)
		return
	}
	defer closeOut()

	stats, err := p.Run(ctx, out)
	if err != nil {
		logger.Error("batch failed", slog.String("error", logging.SanitizeError(err)))
		var succeeded, failed int64
		if stats != nil {
			succeeded, failed = stats.Succeeded, stats.Failed
		}
		metrics.RecordJob("failure", time.Since(start), succeeded, failed)
		return
	}

	for _, f := range stats.Failures {
		logger.Warn("target failed",
			slog.String("key", f.Key),
			slog.String("request_id", f.RequestID),
			slog.String("error", logging.SanitizeError(f.Err)))
	}

	status := "success"
	switch {
	case stats.Failed > 0 && stats.Succeeded == 0:
		status = "failure"
	case stats.Failed > 0:
		status = "partial"
	}
	metrics.RecordJob(status, time.Since(start), stats.Succeeded, stats.Failed)

	logger.Info("batch completed",
		slog.String("status", status),
		slog.Int("requests", stats.Requests),
		slog.Int64("succeeded", stats.Succeeded),
		slog.Int64("failed", stats.Failed),
		slog.Int64("items", stats.Items),
		slog.Duration("duration", stats.Duration))
}

// openSink returns a JSON lines sink appending to path, or a discarding
// sink when path is empty.
func openSink(path string) (acquire.Sink, func(), error) {
	if path == "" {
		return sink.Discard{}, func() {}, nil
	}
	// #nosec G302 G304 -- the output path comes from the operator's environment
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return sink.NewJSONL(f), func() { _ = f.Close() }, nil
}
