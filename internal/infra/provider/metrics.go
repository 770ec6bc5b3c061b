package provider

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes provider calls.
type MetricsRecorder interface {
	RecordCall(provider string, duration time.Duration, err error)
	RecordOutputLength(provider string, runes int)
}

// PrometheusMetrics records provider calls on the default registry.
type PrometheusMetrics struct {
	callDuration *prometheus.HistogramVec
	callsTotal   *prometheus.CounterVec
	outputLength *prometheus.HistogramVec
}

var (
	prometheusMetricsInstance *PrometheusMetrics
	prometheusMetricsOnce     sync.Once
)

// registerOrExisting registers c, or returns the collector already
// registered under the same name so repeated construction in tests is safe.
func registerOrExisting[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// NewPrometheusMetrics returns the process-wide provider metrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusMetrics{
			callDuration: registerOrExisting(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "acquisition_provider_call_duration_seconds",
				Help:    "Time taken by a text-processing API call",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			}, []string{"provider"})),
			callsTotal: registerOrExisting(prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "acquisition_provider_calls_total",
				Help: "Text-processing API calls by provider and result",
			}, []string{"provider", "result"})),
			outputLength: registerOrExisting(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "acquisition_provider_output_characters",
				Help:    "Length of translated output in characters (Unicode runes)",
				Buckets: []float64{100, 300, 500, 1000, 2000, 5000, 10000},
			}, []string{"provider"})),
		}
	})
	return prometheusMetricsInstance
}

// RecordCall observes one API call.
func (p *PrometheusMetrics) RecordCall(provider string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	p.callsTotal.WithLabelValues(provider, result).Inc()
	p.callDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordOutputLength observes the length of generated text.
func (p *PrometheusMetrics) RecordOutputLength(provider string, runes int) {
	p.outputLength.WithLabelValues(provider).Observe(float64(runes))
}

// NoopMetrics discards observations.
type NoopMetrics struct{}

// RecordCall does nothing.
func (NoopMetrics) RecordCall(string, time.Duration, error) {}

// RecordOutputLength does nothing.
func (NoopMetrics) RecordOutputLength(string, int) {}
