// Package metrics exposes Prometheus instrumentation for the detection
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesRun = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minerwatch_cycles_total",
			Help: "Total number of detection cycles run",
		},
	)

	Detections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minerwatch_detections_total",
			Help: "Total number of positive classifier detections",
		},
	)

	CoverageHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minerwatch_coverage_hits_total",
			Help: "Detections skipped because the engine already had matching alerts",
		},
	)

	RulesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minerwatch_rules_generated_total",
			Help: "Total number of rules synthesized",
		},
		[]string{"kind"},
	)

	RulesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minerwatch_rules_published_total",
			Help: "Rules sent to the backend by outcome",
		},
		[]string{"outcome"},
	)

	ReloadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minerwatch_engine_reloads_total",
			Help: "Signature engine reload attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	SyntheticEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minerwatch_synthetic_events_total",
			Help: "Synthetic events fabricated when no telemetry was available",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "minerwatch_cycle_duration_seconds",
			Help:    "Time taken to run one detection cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)
