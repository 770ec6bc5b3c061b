// Package slo publishes acquisition service level objectives and the
// measurements compared against them.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets for the acquisition pipeline.
const (
	// SuccessRatioSLO is the target share of strategy invocations that succeed
	SuccessRatioSLO = 0.95

	// LatencyTargetSeconds is the target mean latency of one strategy invocation
	LatencyTargetSeconds = 5.0

	// OpenCircuitBudget is the number of simultaneously open circuits tolerated
	OpenCircuitBudget = 0
)

// SLO tracking metrics.
// These gauges are refreshed from health snapshots after every acquisition run.
var (
	// SLOSuccessRatio tracks the success ratio (0-1) of each strategy,
	// calculated as: successes / (successes + failures), rejections excluded
	SLOSuccessRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_acquisition_success_ratio",
			Help: "Strategy success ratio (0-1), target: 0.95",
		},
		[]string{"strategy"},
	)

	// SLOMeanLatency tracks the mean invocation latency of each strategy in seconds
	SLOMeanLatency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_acquisition_mean_latency_seconds",
			Help: "Mean strategy invocation latency in seconds, target: 5",
		},
		[]string{"strategy"},
	)

	// SLOOpenCircuits tracks how many (target, strategy) circuits are open
	SLOOpenCircuits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_open_circuits",
			Help: "Number of open circuits, target: 0",
		},
	)
)

// UpdateSuccessRatio updates the success ratio of a strategy.
func UpdateSuccessRatio(strategy string, ratio float64) {
	SLOSuccessRatio.WithLabelValues(strategy).Set(ratio)
}

// UpdateMeanLatency updates the mean latency of a strategy.
func UpdateMeanLatency(strategy string, seconds float64) {
	SLOMeanLatency.WithLabelValues(strategy).Set(seconds)
}

// UpdateOpenCircuits updates the open circuit count.
func UpdateOpenCircuits(n int) {
	SLOOpenCircuits.Set(float64(n))
}

// MeetsSuccessRatio reports whether ratio satisfies SuccessRatioSLO.
func MeetsSuccessRatio(ratio float64) bool {
	return ratio >= SuccessRatioSLO
}
