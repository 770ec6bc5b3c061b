package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"acquirer/internal/pkg/config"
)

// WorkerMetrics are the scheduler's own metrics; per-request acquisition
// metrics live in observability/metrics.
type WorkerMetrics struct {
	*config.ConfigMetrics

	CronJobRunsTotal            *prometheus.CounterVec
	CronJobDurationSeconds      prometheus.Histogram
	CronJobRequestsTotal        *prometheus.CounterVec
	CronJobLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics registers the worker metrics on reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	factory := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker", reg),

		CronJobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total number of cron job runs by status (success/partial/failure/skipped)",
		}, []string{"status"}),

		CronJobDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of cron job execution in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		CronJobRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_requests_total",
			Help: "Acquisition requests processed by cron job runs, by result",
		}, []string{"result"}),

		CronJobLastSuccessTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last cron job run without failed requests",
		}),
	}
}

// RecordJob records a finished run.
func (m *WorkerMetrics) RecordJob(status string, duration time.Duration, succeeded, failed int64) {
	m.CronJobRunsTotal.WithLabelValues(status).Inc()
	m.CronJobDurationSeconds.Observe(duration.Seconds())
	m.CronJobRequestsTotal.WithLabelValues("success").Add(float64(succeeded))
	m.CronJobRequestsTotal.WithLabelValues("failure").Add(float64(failed))
	if status == "success" {
		m.CronJobLastSuccessTimestamp.SetToCurrentTime()
	}
}

// RecordSkipped records a run skipped because the previous one was still
// in progress.
func (m *WorkerMetrics) RecordSkipped() {
	m.CronJobRunsTotal.WithLabelValues("skipped").Inc()
}
