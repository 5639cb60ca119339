package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Agent metrics for production monitoring
var (
	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raspi_doctor_cycles_total",
			Help: "Total number of monitoring cycles run",
		},
		[]string{"status"}, // status: completed/failed
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raspi_doctor_cycle_duration_seconds",
			Help:    "Monitoring cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
	)

	// Action metrics
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raspi_doctor_actions_total",
			Help: "Total number of remediation actions executed",
		},
		[]string{"action", "status"}, // status: success/failure/skipped
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raspi_doctor_action_duration_seconds",
			Help:    "Remediation action duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 11), // 50ms to ~2min
		},
		[]string{"action"},
	)

	// Knowledge base metrics
	PatternsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raspi_doctor_patterns_stored_total",
			Help: "Total number of pattern upserts by pattern type",
		},
		[]string{"type"},
	)

	LearnedMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raspi_doctor_learned_matches_total",
			Help: "Total number of decisions driven by learned pattern matches",
		},
	)

	OutcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raspi_doctor_outcomes_recorded_total",
			Help: "Total number of action outcomes recorded",
		},
		[]string{"action", "success"},
	)

	// Trend metrics
	TrendAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raspi_doctor_trend_alerts_total",
			Help: "Total number of degrading-trend alerts raised",
		},
		[]string{"metric"},
	)

	// System snapshot gauges
	SnapshotMetric = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raspi_doctor_snapshot_metric",
			Help: "Last collected value per health metric",
		},
		[]string{"metric"},
	)

	ImprovementScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raspi_doctor_improvement_score",
			Help: "Weighted improvement score of the last cycle versus the previous one",
		},
	)

	// LLM advisor metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raspi_doctor_llm_requests_total",
			Help: "Total number of LLM advisor requests",
		},
		[]string{"model", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raspi_doctor_llm_request_duration_seconds",
			Help:    "LLM advisor request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"model"},
	)
)
