// Package engine turns a health snapshot into a prioritized action list.
// Three sources feed the list: learned pattern matches, a static threshold
// rule table, and long-term trend alerts. The final sort is stable so equal
// priorities keep source order (learned, then thresholds, then trends).
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sergeyitaly/raspi-doctor/internal/analytics"
	"github.com/sergeyitaly/raspi-doctor/internal/config"
	"github.com/sergeyitaly/raspi-doctor/internal/knowledge"
	"github.com/sergeyitaly/raspi-doctor/internal/metrics"
	"github.com/sergeyitaly/raspi-doctor/internal/telemetry"
)

// PatternTypeSystemState tags whole-snapshot patterns in the knowledge base.
const PatternTypeSystemState = "system_state"

// learnedMatchThreshold is the similarity above which a learned pattern's
// solution is recommended.
const learnedMatchThreshold = 0.75

// trendAlertSlope is the minimum |slope| for a trend to warrant investigation.
const trendAlertSlope = 0.5

// trendWatchlist is the fixed set of metrics checked for emerging issues.
var trendWatchlist = []string{
	"cpu_temperature",
	"memory_percent",
	"disk_percent",
	"load_15min",
}

// PatternSource is the slice of the knowledge base the engine consults.
type PatternSource interface {
	SimilarPatterns(ctx context.Context, data map[string]any, q knowledge.PatternQuery) ([]knowledge.Pattern, error)
}

// TrendSource classifies a metric's recent trajectory.
type TrendSource interface {
	Trend(ctx context.Context, metric string, window time.Duration) (*analytics.Trend, error)
}

// Engine is the decision engine. All dependencies are injected; the engine
// itself is stateless between cycles.
type Engine struct {
	patterns PatternSource
	trends   TrendSource
	log      *zap.Logger
}

// New creates a decision engine.
func New(patterns PatternSource, trends TrendSource, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{patterns: patterns, trends: trends, log: log}
}

// Analyze builds the cycle's recommended actions from learned patterns,
// threshold rules and trend alerts, sorted by priority. Lookup failures are
// logged and skipped; a degraded knowledge base must not silence the static
// rules.
func (e *Engine) Analyze(ctx context.Context, snap *telemetry.HealthSnapshot, cfg *config.Config) []RecommendedAction {
	var actions []RecommendedAction
	actions = append(actions, e.learnedActions(ctx, snap)...)
	actions = append(actions, thresholdActions(snap, cfg.Thresholds)...)
	actions = append(actions, e.trendActions(ctx, cfg.Learning.TrendWindow())...)

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority.Rank() > actions[j].Priority.Rank()
	})
	return actions
}

// learnedActions queries the pattern store with the timestamp-free snapshot
// and recommends stored solutions for close matches.
func (e *Engine) learnedActions(ctx context.Context, snap *telemetry.HealthSnapshot) []RecommendedAction {
	matches, err := e.patterns.SimilarPatterns(ctx, snap.Pattern(), knowledge.PatternQuery{Type: PatternTypeSystemState})
	if err != nil {
		e.log.Warn("pattern lookup failed", zap.Error(err))
		return nil
	}

	var actions []RecommendedAction
	for _, m := range matches {
		if m.Similarity <= learnedMatchThreshold || strings.TrimSpace(m.Solution) == "" {
			continue
		}
		priority := PriorityMedium
		if m.Severity > 0.7 {
			priority = PriorityHigh
		}
		actions = append(actions, RecommendedAction{
			Action:     ActionType(m.Solution),
			Priority:   priority,
			Reason:     fmt.Sprintf("Matched learned pattern (confidence: %.2f)", m.Confidence),
			Learned:    true,
			Similarity: m.Similarity,
		})
	}
	return actions
}

// thresholdActions is the static rule table. Rules fire in the listed order,
// which the stable sort preserves inside each priority band.
func thresholdActions(snap *telemetry.HealthSnapshot, t config.Thresholds) []RecommendedAction {
	var actions []RecommendedAction

	if snap.CPU.Temperature > t.CPUTemp {
		actions = append(actions, RecommendedAction{
			Action:   ActionThrottleCPU,
			Priority: PriorityHigh,
			Reason:   fmt.Sprintf("CPU temperature critical: %.1f°C (threshold: %.1f°C)", snap.CPU.Temperature, t.CPUTemp),
		})
	}
	if snap.Memory.Percent > t.MemoryUsage {
		actions = append(actions, RecommendedAction{
			Action:   ActionClearCache,
			Priority: PriorityMedium,
			Reason:   fmt.Sprintf("High memory usage: %.1f%% (threshold: %.1f%%)", snap.Memory.Percent, t.MemoryUsage),
		})
	}
	if snap.Disk.Percent > t.DiskUsage {
		actions = append(actions, RecommendedAction{
			Action:   ActionCleanLogs,
			Priority: PriorityHigh,
			Reason:   fmt.Sprintf("Disk usage critical: %.1f%% (threshold: %.1f%%)", snap.Disk.Percent, t.DiskUsage),
		})
	}
	if snap.CPU.Load15Min > t.Load15Min {
		actions = append(actions, RecommendedAction{
			Action:   ActionManageServices,
			Target:   "stop_non_essential",
			Priority: PriorityMedium,
			Reason:   fmt.Sprintf("High system load: %.2f (threshold: %.2f)", snap.CPU.Load15Min, t.Load15Min),
		})
	}
	if snap.Services.FailedCount > 0 {
		actions = append(actions, RecommendedAction{
			Action:               ActionRestartFailedServices,
			Priority:             PriorityMedium,
			Reason:               fmt.Sprintf("%d failed services detected: %s", snap.Services.FailedCount, strings.Join(snap.Services.FailedUnits, ",")),
			SmartTroubleshooting: true,
		})
	}
	if snap.Security.FailedLogins > t.FailedLogins {
		actions = append(actions, RecommendedAction{
			Action:   ActionIncreaseSecurity,
			Priority: PriorityHigh,
			Reason:   fmt.Sprintf("High failed login attempts: %d (threshold: %d)", snap.Security.FailedLogins, t.FailedLogins),
		})
	}
	if snap.Network.PacketLossPercent > t.PacketLoss {
		actions = append(actions, RecommendedAction{
			Action:   ActionOptimizeNetwork,
			Priority: PriorityMedium,
			Reason:   fmt.Sprintf("High packet loss: %.1f%%", snap.Network.PacketLossPercent),
		})
	}

	return actions
}

// trendActions checks the watchlist for significant upward trajectories.
func (e *Engine) trendActions(ctx context.Context, window time.Duration) []RecommendedAction {
	var actions []RecommendedAction
	for _, metric := range trendWatchlist {
		trend, err := e.trends.Trend(ctx, metric, window)
		if err != nil {
			e.log.Warn("trend query failed", zap.String("metric", metric), zap.Error(err))
			continue
		}
		if trend == nil || trend.Direction != analytics.DirectionIncreasing {
			continue
		}
		// Alert only on |slope| strictly above the trip point.
		if trend.Slope >= -trendAlertSlope && trend.Slope <= trendAlertSlope {
			continue
		}
		metrics.TrendAlertsTotal.WithLabelValues(metric).Inc()
		actions = append(actions, RecommendedAction{
			Action:   ActionInvestigateTrend,
			Target:   metric,
			Priority: PriorityMedium,
			Reason:   fmt.Sprintf("%s trending upward: slope %.2f", metric, trend.Slope),
		})
	}
	return actions
}
