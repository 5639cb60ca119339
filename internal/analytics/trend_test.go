package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sergeyitaly/raspi-doctor/internal/knowledge"
)

// sliceSource serves canned samples.
type sliceSource struct {
	samples []knowledge.MetricSample
	err     error
}

func (s sliceSource) MetricSamples(ctx context.Context, name string, window time.Duration) ([]knowledge.MetricSample, error) {
	return s.samples, s.err
}

func samplesFrom(values ...float64) []knowledge.MetricSample {
	base := time.Now().Add(-time.Hour)
	out := make([]knowledge.MetricSample, len(values))
	for i, v := range values {
		out[i] = knowledge.MetricSample{
			Name:      "cpu_temperature",
			Value:     v,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestTrendTooFewSamples(t *testing.T) {
	for _, samples := range [][]knowledge.MetricSample{nil, samplesFrom(55)} {
		a := NewAnalyzer(sliceSource{samples: samples})
		trend, err := a.Trend(context.Background(), "cpu_temperature", time.Hour)
		if err != nil {
			t.Fatalf("Trend failed: %v", err)
		}
		if trend != nil {
			t.Errorf("fewer than 2 samples must yield nil, got %+v", trend)
		}
	}
}

func TestTrendSourceError(t *testing.T) {
	a := NewAnalyzer(sliceSource{err: errors.New("store down")})
	trend, err := a.Trend(context.Background(), "cpu_temperature", time.Hour)
	if err == nil {
		t.Fatal("expected error from source")
	}
	if trend != nil {
		t.Errorf("error must not produce a trend, got %+v", trend)
	}
}

func TestTrendIncreasing(t *testing.T) {
	// Slope 0.3 per step, above the 0.1 threshold.
	a := NewAnalyzer(sliceSource{samples: samplesFrom(50.0, 50.3, 50.6, 50.9)})
	trend, err := a.Trend(context.Background(), "cpu_temperature", time.Hour)
	if err != nil {
		t.Fatalf("Trend failed: %v", err)
	}
	if trend.Direction != DirectionIncreasing {
		t.Errorf("expected increasing, got %s (slope %f)", trend.Direction, trend.Slope)
	}
	if math.Abs(trend.Slope-0.3) > 1e-9 {
		t.Errorf("expected slope 0.3, got %f", trend.Slope)
	}
}

func TestTrendStable(t *testing.T) {
	// Slope 0.05 per step, inside the ±0.1 dead band.
	a := NewAnalyzer(sliceSource{samples: samplesFrom(50.0, 50.05, 50.1, 50.15)})
	trend, err := a.Trend(context.Background(), "cpu_temperature", time.Hour)
	if err != nil {
		t.Fatalf("Trend failed: %v", err)
	}
	if trend.Direction != DirectionStable {
		t.Errorf("expected stable, got %s (slope %f)", trend.Direction, trend.Slope)
	}
}

func TestTrendDecreasing(t *testing.T) {
	// Slope -0.4 per step.
	a := NewAnalyzer(sliceSource{samples: samplesFrom(52.0, 51.6, 51.2, 50.8)})
	trend, err := a.Trend(context.Background(), "cpu_temperature", time.Hour)
	if err != nil {
		t.Fatalf("Trend failed: %v", err)
	}
	if trend.Direction != DirectionDecreasing {
		t.Errorf("expected decreasing, got %s (slope %f)", trend.Direction, trend.Slope)
	}
	if math.Abs(trend.Slope-(-0.4)) > 1e-9 {
		t.Errorf("expected slope -0.4, got %f", trend.Slope)
	}
}

func TestTrendStatistics(t *testing.T) {
	a := NewAnalyzer(sliceSource{samples: samplesFrom(40, 60, 50, 70)})
	trend, err := a.Trend(context.Background(), "cpu_temperature", time.Hour)
	if err != nil {
		t.Fatalf("Trend failed: %v", err)
	}
	if trend.Current != 70 {
		t.Errorf("expected current 70, got %f", trend.Current)
	}
	if trend.Min != 40 || trend.Max != 70 {
		t.Errorf("expected min 40 max 70, got %f/%f", trend.Min, trend.Max)
	}
	if trend.Average != 55 {
		t.Errorf("expected average 55, got %f", trend.Average)
	}
	if trend.Samples != 4 {
		t.Errorf("expected 4 samples, got %d", trend.Samples)
	}
}

func TestFitSlopeConstantSeries(t *testing.T) {
	if got := fitSlope([]float64{5, 5, 5, 5}); got != 0 {
		t.Errorf("constant series must have slope 0, got %f", got)
	}
}
