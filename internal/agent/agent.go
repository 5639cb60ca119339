// Package agent runs the monitoring loop: collect a health snapshot, feed it
// through the decision engine, execute what comes out, learn from the
// results. One cycle every few minutes, forever, on a single host.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sergeyitaly/raspi-doctor/internal/audit"
	"github.com/sergeyitaly/raspi-doctor/internal/config"
	"github.com/sergeyitaly/raspi-doctor/internal/engine"
	"github.com/sergeyitaly/raspi-doctor/internal/executor"
	"github.com/sergeyitaly/raspi-doctor/internal/knowledge"
	"github.com/sergeyitaly/raspi-doctor/internal/llm"
	"github.com/sergeyitaly/raspi-doctor/internal/metrics"
	"github.com/sergeyitaly/raspi-doctor/internal/telemetry"
)

// patternConfidence is the base confidence attached to snapshot patterns; it
// rises when an action proves successful against the same state.
const patternConfidence = 0.5

// Agent owns one monitoring loop. It is not safe for concurrent Run calls.
type Agent struct {
	cfgs      config.Provider
	collector telemetry.Collector
	kb        knowledge.Store
	engine    *engine.Engine
	executor  *executor.Executor
	advisor   llm.Advisor
	audit     audit.Logger
	log       *zap.Logger

	trigger chan struct{}
	prev    *telemetry.HealthSnapshot
}

// New wires an agent. Configuration comes through a Provider so file
// reloads take effect on the next cycle. The advisor and audit logger may
// be nil; everything else is required.
func New(cfgs config.Provider, collector telemetry.Collector, kb knowledge.Store, eng *engine.Engine, exec *executor.Executor, advisor llm.Advisor, auditLog audit.Logger, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		cfgs:      cfgs,
		collector: collector,
		kb:        kb,
		engine:    eng,
		executor:  exec,
		advisor:   advisor,
		audit:     auditLog,
		log:       log,
		trigger:   make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate cycle. Safe to call from any goroutine;
// a pending request coalesces with the next one.
func (a *Agent) TriggerNow() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// Run executes cycles until the context is cancelled. The first cycle runs
// immediately; a cycle failure is logged and the loop keeps going.
func (a *Agent) Run(ctx context.Context) error {
	interval := a.cfgs.Get().Agent.Interval()
	a.log.Info("agent started",
		zap.Duration("interval", interval),
	)
	if a.audit != nil {
		event := audit.NewEvent(audit.EventAgentStarted).
			WithDescription("monitoring loop started")
		_ = a.audit.Log(ctx, event)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()
		case <-ticker.C:
			a.cycle(ctx)
		case <-a.trigger:
			a.cycle(ctx)
		}
		// Pick up a reloaded interval without restarting the loop.
		if next := a.cfgs.Get().Agent.Interval(); next != interval {
			a.log.Info("cycle interval updated", zap.Duration("interval", next))
			interval = next
			ticker.Reset(interval)
		}
	}
}

func (a *Agent) shutdown() {
	a.log.Info("agent shutting down")
	if a.audit != nil {
		event := audit.NewEvent(audit.EventAgentShutdown).
			WithDescription("monitoring loop stopped")
		_ = a.audit.Log(context.Background(), event)
		_ = a.audit.Sync()
	}
}

func (a *Agent) cycle(ctx context.Context) {
	start := time.Now()
	if err := a.RunOnce(ctx); err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		a.log.Error("cycle failed", zap.Error(err))
		return
	}
	metrics.CyclesTotal.WithLabelValues("completed").Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
}

// RunOnce performs a single monitoring cycle against the current
// configuration snapshot.
func (a *Agent) RunOnce(ctx context.Context) error {
	cfg := a.cfgs.Get()
	cycleID := uuid.NewString()
	start := time.Now()
	if a.audit != nil {
		_ = a.audit.LogCycleStarted(ctx, cycleID)
	}

	snap, err := a.collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collect snapshot: %w", err)
	}

	a.recordSnapshot(ctx, cfg, snap)

	if a.prev != nil {
		improvement := engine.Improvement(a.prev, snap)
		metrics.ImprovementScore.Set(improvement)
		if err := a.kb.StoreMetric(ctx, "improvement_score", improvement, cycleID); err != nil {
			a.log.Warn("failed to store improvement score", zap.Error(err))
		}
	}

	actions := a.engine.Analyze(ctx, snap, cfg)
	a.log.Info("cycle analysis complete",
		zap.String("cycle_id", cycleID),
		zap.Int("recommended", len(actions)),
	)

	executed := 0
	for _, action := range actions {
		result, ran := a.executor.Execute(ctx, cycleID, action, snap, cfg)
		if !ran {
			continue
		}
		executed++
		a.learn(ctx, cfg, snap, action, result)
	}

	if executed == 0 && len(actions) > 0 {
		a.consultAdvisor(ctx, cycleID, cfg, snap)
	}

	a.prev = snap
	if a.audit != nil {
		_ = a.audit.LogCycleCompleted(ctx, cycleID, executed, time.Since(start))
	}
	return nil
}

// recordSnapshot persists the long-term metric series, exports gauges and
// upserts the whole-state pattern so recurrence counting works.
func (a *Agent) recordSnapshot(ctx context.Context, cfg *config.Config, snap *telemetry.HealthSnapshot) {
	for name, value := range snap.Metrics() {
		if err := a.kb.StoreMetric(ctx, name, value, ""); err != nil {
			a.log.Warn("failed to store metric", zap.String("metric", name), zap.Error(err))
		}
		metrics.SnapshotMetric.WithLabelValues(name).Set(value)
	}

	sev := severity(cfg, snap)
	if err := a.kb.StorePattern(ctx, engine.PatternTypeSystemState, snap.Pattern(), sev, patternConfidence, ""); err != nil {
		a.log.Warn("failed to store system state pattern", zap.Error(err))
		return
	}
	metrics.PatternsStored.WithLabelValues(engine.PatternTypeSystemState).Inc()
}

// learn re-stores the state pattern with the action as its solution once the
// action succeeded, so future similar states recommend it directly.
func (a *Agent) learn(ctx context.Context, cfg *config.Config, snap *telemetry.HealthSnapshot, action engine.RecommendedAction, result string) {
	if len(result) < 7 || result[:7] != "SUCCESS" {
		return
	}
	if action.Action == engine.ActionInvestigateTrend || action.Action == engine.ActionNone {
		return
	}
	sev := severity(cfg, snap)
	if err := a.kb.StorePattern(ctx, engine.PatternTypeSystemState, snap.Pattern(), sev, patternConfidence+0.1, string(action.Action)); err != nil {
		a.log.Warn("failed to store learned solution", zap.Error(err))
		return
	}
	if action.Learned {
		metrics.LearnedMatches.Inc()
	}
}

// severity scores how many thresholds the snapshot breaches, 0..1.
func severity(cfg *config.Config, snap *telemetry.HealthSnapshot) float64 {
	t := cfg.Thresholds
	breaches := 0
	checks := []bool{
		snap.CPU.Temperature > t.CPUTemp,
		snap.Memory.Percent > t.MemoryUsage,
		snap.Disk.Percent > t.DiskUsage,
		snap.CPU.Load15Min > t.Load15Min,
		snap.Services.FailedCount > 0,
		snap.Security.FailedLogins > t.FailedLogins,
		snap.Network.PacketLossPercent > t.PacketLoss,
	}
	for _, breached := range checks {
		if breached {
			breaches++
		}
	}
	return float64(breaches) / float64(len(checks))
}

// consultAdvisor asks the fallback model for a suggestion when every
// recommended action was gated off. The suggestion goes through the same
// executor, so toggles and auditing still apply.
func (a *Agent) consultAdvisor(ctx context.Context, cycleID string, cfg *config.Config, snap *telemetry.HealthSnapshot) {
	if a.advisor == nil {
		return
	}

	if a.audit != nil {
		event := audit.NewEvent(audit.EventFallbackConsulted).
			WithCorrelationID(cycleID).
			WithDescription("all recommended actions disabled, consulting fallback advisor")
		_ = a.audit.Log(ctx, event)
	}

	suggestion, err := a.advisor.Consult(ctx, snap.Pattern())
	if err != nil {
		a.log.Warn("fallback advisor unavailable", zap.Error(err))
		return
	}
	if suggestion == nil || suggestion.Action == string(engine.ActionNone) {
		return
	}

	action := engine.RecommendedAction{
		Action:   engine.ActionType(suggestion.Action),
		Target:   suggestion.Target,
		Priority: engine.PriorityLow,
		Reason:   "AI advisor: " + suggestion.Reason,
	}
	result, ran := a.executor.Execute(ctx, cycleID, action, snap, cfg)
	if ran {
		a.learn(ctx, cfg, snap, action, result)
	}
}
