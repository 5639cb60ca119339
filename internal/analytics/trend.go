// Package analytics classifies metric trajectories with pure statistics:
// least-squares linear regression over recent samples, no model training.
package analytics

import (
	"context"
	"time"

	"github.com/sergeyitaly/raspi-doctor/internal/knowledge"
)

// Trend direction classifications.
const (
	DirectionIncreasing = "increasing"
	DirectionDecreasing = "decreasing"
	DirectionStable     = "stable"
)

// slopeThreshold separates a real trend from noise around zero.
const slopeThreshold = 0.1

// Trend describes a metric's recent trajectory inside one window.
type Trend struct {
	Metric    string    `json:"metric"`
	Direction string    `json:"direction"` // increasing, decreasing, stable
	Slope     float64   `json:"slope"`
	Current   float64   `json:"current"`
	Average   float64   `json:"average"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Samples   int       `json:"samples"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// MetricSource provides the samples to analyze. knowledge.Store satisfies it.
type MetricSource interface {
	MetricSamples(ctx context.Context, name string, window time.Duration) ([]knowledge.MetricSample, error)
}

// Analyzer computes trends from stored metric samples.
type Analyzer struct {
	source MetricSource
}

// NewAnalyzer creates a trend analyzer over the given metric source.
func NewAnalyzer(source MetricSource) *Analyzer {
	return &Analyzer{source: source}
}

// Trend fits a least-squares line over sample index (not timestamp spacing)
// and classifies the slope. Returns nil when fewer than 2 samples exist in
// the window: a single point cannot establish a slope. Store errors degrade
// to nil for the same reason: "no data" and "store down" look identical to
// the caller.
func (a *Analyzer) Trend(ctx context.Context, metric string, window time.Duration) (*Trend, error) {
	samples, err := a.source.MetricSamples(ctx, metric, window)
	if err != nil {
		return nil, err
	}
	if len(samples) < 2 {
		return nil, nil
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	slope := fitSlope(values)

	direction := DirectionStable
	switch {
	case slope > slopeThreshold:
		direction = DirectionIncreasing
	case slope < -slopeThreshold:
		direction = DirectionDecreasing
	}

	t := &Trend{
		Metric:    metric,
		Direction: direction,
		Slope:     slope,
		Current:   values[len(values)-1],
		Min:       values[0],
		Max:       values[0],
		Samples:   len(values),
		Start:     samples[0].Timestamp,
		End:       samples[len(samples)-1].Timestamp,
	}
	var sum float64
	for _, v := range values {
		sum += v
		if v < t.Min {
			t.Min = v
		}
		if v > t.Max {
			t.Max = v
		}
	}
	t.Average = sum / float64(len(values))
	return t, nil
}

// fitSlope performs linear regression y = mx + b over index vs. value and
// returns m.
func fitSlope(values []float64) float64 {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
