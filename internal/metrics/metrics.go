// Package metrics provides Prometheus instrumentation for the solver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCallLatency tracks provider round-trip latency in seconds.
	ProviderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_seconds",
			Help:    "Provider API call latency in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "model"},
	)

	// TokenUsageTotal tracks tokens consumed per provider and direction.
	TokenUsageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_usage_total",
			Help: "Total number of tokens consumed.",
		},
		[]string{"provider", "model", "direction"}, // direction: input, output, reasoning
	)

	// ProviderRetriesTotal counts retried provider calls.
	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_retries_total",
			Help: "Total number of retried provider calls.",
		},
		[]string{"provider"},
	)

	// SolveIterationsTotal counts solver loop rounds by terminal outcome.
	SolveIterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solve_iterations_total",
			Help: "Total solver iterations executed.",
		},
		[]string{"outcome"}, // graded, empty, failed
	)

	// SolveBestScore observes the final best score of completed solves.
	SolveBestScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solve_best_score",
			Help:    "Final best score (0-10) of completed solves.",
			Buckets: []float64{0, 2, 4, 6, 8, 9, 10},
		},
	)
)

// RecordTokenUsage increments all three token direction counters.
func RecordTokenUsage(provider, model string, input, output, reasoning int) {
	TokenUsageTotal.WithLabelValues(provider, model, "input").Add(float64(input))
	TokenUsageTotal.WithLabelValues(provider, model, "output").Add(float64(output))
	TokenUsageTotal.WithLabelValues(provider, model, "reasoning").Add(float64(reasoning))
}
