// Package worker holds the infrastructure of the scheduled acquisition
// worker: its environment configuration, health endpoints and metrics.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"acquirer/internal/pkg/config"
)

// WorkerConfig holds the scheduler and server settings.
type WorkerConfig struct {
	// CronSchedule is a five-field cron expression for batch runs.
	CronSchedule string

	// Timezone is the IANA timezone the schedule is evaluated in.
	Timezone string

	// BatchTimeout bounds one scheduled batch.
	BatchTimeout time.Duration

	// Parallelism bounds concurrent requests within a batch.
	Parallelism int

	HealthPort     int
	MetricsPort    int
	GRPCHealthPort int

	// PipelineConfig is the path of the YAML pipeline file; empty uses
	// built-in defaults.
	PipelineConfig string

	// OutputPath is a JSON lines file results are appended to. Empty
	// discards results.
	OutputPath string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		CronSchedule:   "*/30 * * * *",
		Timezone:       "UTC",
		BatchTimeout:   10 * time.Minute,
		Parallelism:    4,
		HealthPort:     9091,
		MetricsPort:    9090,
		GRPCHealthPort: 9092,
	}
}

// Validate checks every field and reports all problems at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	if err := config.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateDuration(c.BatchTimeout, time.Second, 4*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("batch timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.Parallelism, 1, 256); err != nil {
		errs = append(errs, fmt.Errorf("parallelism: %w", err))
	}
	for name, port := range map[string]int{"health": c.HealthPort, "metrics": c.MetricsPort, "grpc health": c.GRPCHealthPort} {
		if err := validatePort(port); err != nil {
			errs = append(errs, fmt.Errorf("%s port: %w", name, err))
		}
	}
	if c.HealthPort == c.MetricsPort || c.HealthPort == c.GRPCHealthPort || c.MetricsPort == c.GRPCHealthPort {
		errs = append(errs, errors.New("health, metrics and grpc health ports must differ"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func validatePort(v int) error {
	return config.ValidateIntRange(v, 1024, 65535)
}

// LoadConfigFromEnv loads the worker configuration. Invalid values fall
// back to defaults; each fallback is logged and counted in metrics.
//
// Environment variables:
//   - ACQUIRE_CRON (default "*/30 * * * *")
//   - ACQUIRE_TIMEZONE (default "UTC")
//   - ACQUIRE_TIMEOUT: batch timeout, 1s-4h (default 10m)
//   - ACQUIRE_PARALLELISM: 1-256 (default 4)
//   - HEALTH_PORT, METRICS_PORT, GRPC_HEALTH_PORT: 1024-65535
//   - PIPELINE_CONFIG: path to the pipeline YAML file
//   - ACQUIRE_OUTPUT: JSON lines file receiving results
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	cfg := DefaultConfig()
	l := envLoader{logger: logger, metrics: metrics}

	cfg.CronSchedule = track(&l, "cron_schedule",
		config.LoadEnvWithFallback("ACQUIRE_CRON", cfg.CronSchedule, config.ValidateCronSchedule))
	cfg.Timezone = track(&l, "timezone",
		config.LoadEnvWithFallback("ACQUIRE_TIMEZONE", cfg.Timezone, config.ValidateTimezone))
	cfg.BatchTimeout = track(&l, "batch_timeout",
		config.LoadEnvDuration("ACQUIRE_TIMEOUT", cfg.BatchTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Second, 4*time.Hour)
		}))
	cfg.Parallelism = track(&l, "parallelism",
		config.LoadEnvInt("ACQUIRE_PARALLELISM", cfg.Parallelism, func(v int) error {
			return config.ValidateIntRange(v, 1, 256)
		}))
	cfg.HealthPort = track(&l, "health_port", config.LoadEnvInt("HEALTH_PORT", cfg.HealthPort, validatePort))
	cfg.MetricsPort = track(&l, "metrics_port", config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, validatePort))
	cfg.GRPCHealthPort = track(&l, "grpc_health_port", config.LoadEnvInt("GRPC_HEALTH_PORT", cfg.GRPCHealthPort, validatePort))
	cfg.PipelineConfig = config.LoadEnvString("PIPELINE_CONFIG", "")
	cfg.OutputPath = config.LoadEnvString("ACQUIRE_OUTPUT", "")

	metrics.Observe(l.fallback)
	return &cfg
}

type envLoader struct {
	logger   *slog.Logger
	metrics  *WorkerMetrics
	fallback bool
}

func track[T any](l *envLoader, field string, r config.LoadResult[T]) T {
	if r.FallbackApplied {
		l.fallback = true
		l.metrics.RecordValidationError(field)
		l.metrics.RecordFallback(field)
		for _, warning := range r.Warnings {
			l.logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}
	return r.Value
}
