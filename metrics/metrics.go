// Package metrics exposes Prometheus collectors for the appraisal pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal counts appraisal requests by tier and result.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appraisal",
			Name:      "requests_total",
			Help:      "Total appraisal requests by tier and result.",
		},
		[]string{"tier", "result"},
	)

	// Duration tracks end-to-end appraisal latency by tier.
	Duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "appraisal",
			Name:      "duration_seconds",
			Help:      "End-to-end appraisal duration in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tier"},
	)

	// ModelInvocations counts vision model calls by mode and result.
	ModelInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appraisal",
			Name:      "model_invocations_total",
			Help:      "Vision model invocations by mode and result.",
		},
		[]string{"mode", "result"},
	)

	// ParseOutcomes counts which fallback strategy produced each report.
	ParseOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appraisal",
			Name:      "parse_outcomes_total",
			Help:      "Report parse outcomes by winning strategy.",
		},
		[]string{"strategy"},
	)
)

var registerOnce sync.Once

// Register installs the collectors in the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal, Duration, ModelInvocations, ParseOutcomes)
	})
}
