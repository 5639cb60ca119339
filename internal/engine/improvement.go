package engine

import "github.com/sergeyitaly/raspi-doctor/internal/telemetry"

// improvementWeights spreads the improvement score over the metrics that
// matter most for perceived host health. Weights sum to 1.
var improvementWeights = []struct {
	weight float64
	value  func(*telemetry.HealthSnapshot) float64
}{
	{0.25, func(s *telemetry.HealthSnapshot) float64 { return s.CPU.Percent }},
	{0.25, func(s *telemetry.HealthSnapshot) float64 { return s.Memory.Percent }},
	{0.20, func(s *telemetry.HealthSnapshot) float64 { return s.CPU.Load15Min }},
	{0.15, func(s *telemetry.HealthSnapshot) float64 { return s.Disk.Percent }},
	{0.15, func(s *telemetry.HealthSnapshot) float64 { return float64(s.Services.FailedCount) }},
}

// Improvement scores the weighted percentage change between two snapshots.
// Positive means the system got healthier (usage and failure counts fell).
// Terms with a zero previous value are skipped: no division by zero, and a
// metric appearing out of nowhere is not an improvement signal.
func Improvement(previous, current *telemetry.HealthSnapshot) float64 {
	if previous == nil || current == nil {
		return 0
	}

	var improvement float64
	for _, w := range improvementWeights {
		prev := w.value(previous)
		if prev == 0 {
			continue
		}
		curr := w.value(current)
		improvement += w.weight * (prev - curr) / prev * 100
	}
	return improvement
}
