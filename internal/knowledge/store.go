package knowledge

import (
	"context"
	"time"
)

// Pattern is a stored, hashed situation with its learned metadata. The hash
// is a pure function of Data (see HashPattern) and is the uniqueness key:
// re-storing identical data bumps OccurrenceCount instead of inserting a row.
type Pattern struct {
	Hash            string         `json:"hash"`
	Type            string         `json:"type"`
	Data            map[string]any `json:"data"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
	OccurrenceCount int            `json:"occurrence_count"`
	Severity        float64        `json:"severity"`
	Confidence      float64        `json:"confidence"`
	Solution        string         `json:"solution"`
	SuccessRate     float64        `json:"success_rate"`

	// Similarity is populated on results of SimilarPatterns only.
	Similarity float64 `json:"similarity,omitempty"`
}

// ActionOutcome is the durable, append-only record of one executed action.
// StateHash links back to the health snapshot present at execution time.
type ActionOutcome struct {
	ID          int64     `json:"id"`
	ActionType  string    `json:"action_type"`
	Target      string    `json:"target"`
	Reason      string    `json:"reason"`
	Result      string    `json:"result"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
	StateHash   string    `json:"state_hash"`
	Improvement float64   `json:"improvement"`
}

// MetricSample is one append-only time-series point.
type MetricSample struct {
	Name      string    `json:"metric_name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Context   string    `json:"context,omitempty"`
}

// ActionStats aggregate outcome history for one action type. When no history
// exists SuccessRate is 0.5, meaning "unknown" rather than "bad".
type ActionStats struct {
	Count          int     `json:"count"`
	SuccessRate    float64 `json:"success_rate"`
	AvgImprovement float64 `json:"avg_improvement"`
}

// PatternQuery narrows a SimilarPatterns lookup.
type PatternQuery struct {
	// Type restricts candidates to one pattern type when non-empty.
	Type string
	// Threshold is the minimum similarity to retain; 0 means DefaultSimilarityThreshold.
	Threshold float64
}

const (
	// DefaultSimilarityThreshold is the default cut-off for SimilarPatterns.
	DefaultSimilarityThreshold = 0.8
	// minOccurrences filters one-off situations out of similarity candidates.
	minOccurrences = 2
	// candidateWindow bounds the number of recent patterns scored per lookup.
	candidateWindow = 10
)

// Store is the knowledge base: learned patterns, action outcomes and
// long-term metrics. Implementations serialize writes internally so
// concurrent cycles cannot race on upserts; reads may run concurrently.
type Store interface {
	// StorePattern upserts by content hash. Existing rows get
	// occurrence_count+1, a fresh last_seen and the new severity,
	// confidence and solution (an empty solution keeps the stored one);
	// new rows start at occurrence_count 1 and success_rate 0.5.
	StorePattern(ctx context.Context, patternType string, data map[string]any, severity, confidence float64, solution string) error

	// SimilarPatterns scores recent, recurring candidates against data and
	// returns those at or above the threshold, sorted by similarity
	// descending.
	SimilarPatterns(ctx context.Context, data map[string]any, q PatternQuery) ([]Pattern, error)

	// RecordOutcome appends one action outcome. Outcomes are never mutated.
	RecordOutcome(ctx context.Context, o *ActionOutcome) error

	// ActionSuccessRate aggregates outcomes for an action type, optionally
	// narrowed to one target.
	ActionSuccessRate(ctx context.Context, actionType, target string) (*ActionStats, error)

	// StoreMetric appends one metric sample.
	StoreMetric(ctx context.Context, name string, value float64, metricContext string) error

	// MetricSamples returns samples for a metric inside the window,
	// oldest first.
	MetricSamples(ctx context.Context, name string, window time.Duration) ([]MetricSample, error)

	// Close releases database resources.
	Close() error
}
