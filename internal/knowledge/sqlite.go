package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Schema versions are tracked in the schema_versions table; migrations are
// idempotent so a partially initialized database heals on the next open.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS system_patterns (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    pattern_hash     TEXT NOT NULL UNIQUE,
    pattern_type     TEXT NOT NULL,
    pattern_data     TEXT NOT NULL DEFAULT '{}', -- tagged JSON, not an opaque blob
    first_seen       DATETIME NOT NULL,
    last_seen        DATETIME NOT NULL,
    occurrence_count INTEGER NOT NULL DEFAULT 1,
    severity         REAL NOT NULL DEFAULT 0.5,
    confidence       REAL NOT NULL DEFAULT 0.5,
    solution         TEXT NOT NULL DEFAULT '',
    success_rate     REAL NOT NULL DEFAULT 0.5
);
CREATE INDEX IF NOT EXISTS idx_patterns_type_seen ON system_patterns(pattern_type, last_seen DESC);

CREATE TABLE IF NOT EXISTS action_outcomes (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    action_type       TEXT NOT NULL,
    target            TEXT NOT NULL DEFAULT '',
    reason            TEXT NOT NULL DEFAULT '',
    result            TEXT NOT NULL DEFAULT '',
    success           INTEGER NOT NULL DEFAULT 0,
    timestamp         DATETIME NOT NULL,
    system_state_hash TEXT NOT NULL DEFAULT '',
    improvement       REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_outcomes_action ON action_outcomes(action_type, target);
CREATE INDEX IF NOT EXISTS idx_outcomes_timestamp ON action_outcomes(timestamp DESC);

CREATE TABLE IF NOT EXISTS long_term_metrics (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_name  TEXT NOT NULL,
    metric_value REAL NOT NULL,
    timestamp    DATETIME NOT NULL,
    context      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time ON long_term_metrics(metric_name, timestamp);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store. A single mutex
// serializes all mutations so concurrent cycles cannot race on pattern
// upserts; reads go straight to the connection pool.
type sqliteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// WAL keeps readers unblocked while a cycle writes.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

// heal re-creates missing tables when a required one went away at query
// time. The version gate in migrate would skip already-applied migrations,
// so the schema SQL (all IF NOT EXISTS) is re-executed directly. Callers
// treat the reinitialized, empty store identically to "no data".
func (s *sqliteStore) heal(err error) bool {
	if err == nil || !strings.Contains(err.Error(), "no such table") {
		return false
	}
	for _, m := range migrations {
		_, _ = s.db.Exec(m.sql)
	}
	return true
}

// ─── Patterns ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) StorePattern(ctx context.Context, patternType string, data map[string]any, severity, confidence float64, solution string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode pattern data: %w", err)
	}
	hash := HashPattern(data)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO system_patterns
            (pattern_hash, pattern_type, pattern_data, first_seen, last_seen,
             occurrence_count, severity, confidence, solution, success_rate)
        VALUES(?,?,?,?,?,1,?,?,?,0.5)
        ON CONFLICT(pattern_hash) DO UPDATE SET
            last_seen        = excluded.last_seen,
            occurrence_count = occurrence_count + 1,
            severity         = excluded.severity,
            confidence       = excluded.confidence,
            solution         = CASE WHEN excluded.solution = '' THEN solution ELSE excluded.solution END
    `, hash, patternType, string(payload), now, now, severity, confidence, solution)
	if s.heal(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

func (s *sqliteStore) SimilarPatterns(ctx context.Context, data map[string]any, q PatternQuery) ([]Pattern, error) {
	threshold := q.Threshold
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}

	query := `
        SELECT pattern_hash, pattern_type, pattern_data, first_seen, last_seen,
               occurrence_count, severity, confidence, solution, success_rate
        FROM system_patterns
        WHERE occurrence_count > ?`
	args := []any{minOccurrences}
	if q.Type != "" {
		query += ` AND pattern_type = ?`
		args = append(args, q.Type)
	}
	query += ` ORDER BY last_seen DESC LIMIT ?`
	args = append(args, candidateWindow)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if s.heal(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var matches []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		p.Similarity = Similarity(data, p.Data)
		if p.Similarity >= threshold {
			matches = append(matches, *p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

func scanPattern(rows *sql.Rows) (*Pattern, error) {
	p := &Pattern{}
	var payload string
	var firstSeen, lastSeen string
	err := rows.Scan(&p.Hash, &p.Type, &payload, &firstSeen, &lastSeen,
		&p.OccurrenceCount, &p.Severity, &p.Confidence, &p.Solution, &p.SuccessRate)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &p.Data); err != nil {
		// A corrupt payload disqualifies the row from matching but must not
		// fail the lookup.
		p.Data = nil
	}
	p.FirstSeen, _ = parseTime(firstSeen)
	p.LastSeen, _ = parseTime(lastSeen)
	return p, nil
}

// ─── Outcomes ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) RecordOutcome(ctx context.Context, o *ActionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO action_outcomes
            (action_type, target, reason, result, success, timestamp, system_state_hash, improvement)
        VALUES(?,?,?,?,?,?,?,?)
    `, o.ActionType, o.Target, o.Reason, o.Result, boolToInt(o.Success),
		o.Timestamp.UTC(), o.StateHash, o.Improvement)
	if s.heal(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

func (s *sqliteStore) ActionSuccessRate(ctx context.Context, actionType, target string) (*ActionStats, error) {
	query := `SELECT COUNT(*), COALESCE(AVG(success),0), COALESCE(AVG(improvement),0) FROM action_outcomes WHERE action_type = ?`
	args := []any{actionType}
	if target != "" {
		query += ` AND target = ?`
		args = append(args, target)
	}

	stats := &ActionStats{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.Count, &stats.SuccessRate, &stats.AvgImprovement)
	if s.heal(err) {
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate outcomes: %w", err)
	}
	if stats.Count == 0 {
		// Neutral default: unknown, not bad.
		return &ActionStats{Count: 0, SuccessRate: 0.5, AvgImprovement: 0}, nil
	}
	return stats, nil
}

// ─── Metrics ──────────────────────────────────────────────────────────────────

func (s *sqliteStore) StoreMetric(ctx context.Context, name string, value float64, metricContext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO long_term_metrics(metric_name, metric_value, timestamp, context)
        VALUES(?,?,?,?)
    `, name, value, time.Now().UTC(), metricContext)
	if s.heal(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

func (s *sqliteStore) MetricSamples(ctx context.Context, name string, window time.Duration) ([]MetricSample, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := s.db.QueryContext(ctx, `
        SELECT metric_name, metric_value, timestamp, context
        FROM long_term_metrics
        WHERE metric_name = ? AND timestamp > ?
        ORDER BY timestamp ASC
    `, name, cutoff)
	if s.heal(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var samples []MetricSample
	for rows.Next() {
		var m MetricSample
		var ts string
		if err := rows.Scan(&m.Name, &m.Value, &ts, &m.Context); err != nil {
			return nil, err
		}
		m.Timestamp, _ = parseTime(ts)
		samples = append(samples, m)
	}
	return samples, rows.Err()
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, f := range timeFormats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
