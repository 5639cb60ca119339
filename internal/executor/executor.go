// Package executor turns recommended actions into shell commands, records
// every outcome in the knowledge base and writes the audit trail. Execution
// is deliberately boring: one dispatch table, text results prefixed SUCCESS:
// or ERROR:, no exceptions escaping a handler.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sergeyitaly/raspi-doctor/internal/audit"
	"github.com/sergeyitaly/raspi-doctor/internal/config"
	"github.com/sergeyitaly/raspi-doctor/internal/engine"
	"github.com/sergeyitaly/raspi-doctor/internal/knowledge"
	"github.com/sergeyitaly/raspi-doctor/internal/metrics"
	"github.com/sergeyitaly/raspi-doctor/internal/telemetry"
	"github.com/sergeyitaly/raspi-doctor/internal/troubleshoot"
)

// suspiciousIPBanCount is the per-IP failed-login count above which an
// address gets firewalled.
const suspiciousIPBanCount = 20

// sshBruteForceLogins is the total failed-login count that triggers extra
// hardening on top of per-IP bans.
const sshBruteForceLogins = 50

// nonEssentialServices are stopped by manage_services under load. All are
// safe to stop on a headless host.
var nonEssentialServices = []string{
	"bluetooth",
	"avahi-daemon",
	"triggerhappy",
	"wolfram-engine",
}

// Executor applies one recommended action at a time.
type Executor struct {
	kb        knowledge.Store
	runner    telemetry.Runner
	collector telemetry.Collector
	ts        *troubleshoot.Troubleshooter
	audit     audit.Logger
	log       *zap.Logger
}

// New wires an executor. The collector is used to measure post-action state
// for improvement scoring; it may be nil, in which case improvement is
// recorded as zero.
func New(kb knowledge.Store, runner telemetry.Runner, collector telemetry.Collector, ts *troubleshoot.Troubleshooter, auditLog audit.Logger, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		kb:        kb,
		runner:    runner,
		collector: collector,
		ts:        ts,
		audit:     auditLog,
		log:       log,
	}
}

// Execute runs one action. The returned result is a SUCCESS:/ERROR: text and
// executed reports whether a handler actually ran (disabled actions and
// "none" do not count). Every path, including panics inside handlers,
// ends in an audit line and a recorded outcome.
func (x *Executor) Execute(ctx context.Context, cycleID string, action engine.RecommendedAction, snap *telemetry.HealthSnapshot, cfg *config.Config) (result string, executed bool) {
	if action.Action == engine.ActionNone {
		return "SUCCESS: no action required", false
	}

	if !cfg.ActionEnabled(string(action.Action)) {
		result = "Action not enabled or not found"
		metrics.ActionsTotal.WithLabelValues(string(action.Action), "skipped").Inc()
		x.logSkipped(ctx, cycleID, action, result)
		x.recordOutcome(ctx, action, snap, result, 0)
		return result, false
	}

	start := time.Now()
	result = x.dispatch(ctx, action, snap, cfg)
	duration := time.Since(start)

	success := strings.HasPrefix(result, "SUCCESS")
	status := "failure"
	if success {
		status = "success"
	}
	metrics.ActionsTotal.WithLabelValues(string(action.Action), status).Inc()
	metrics.ActionDuration.WithLabelValues(string(action.Action)).Observe(duration.Seconds())

	improvement := 0.0
	if success && x.collector != nil {
		if post, err := x.collector.Collect(ctx); err == nil {
			improvement = engine.Improvement(snap, post)
		}
	}

	if x.audit != nil {
		_ = x.audit.LogAction(ctx, cycleID, string(action.Action), action.Target, action.Reason, result, success)
	}
	x.recordOutcome(ctx, action, snap, result, improvement)

	x.log.Info("action executed",
		zap.String("action", string(action.Action)),
		zap.String("target", action.Target),
		zap.Bool("success", success),
		zap.Duration("duration", duration),
	)
	return result, true
}

func (x *Executor) logSkipped(ctx context.Context, cycleID string, action engine.RecommendedAction, result string) {
	if x.audit == nil {
		return
	}
	event := audit.NewEvent(audit.EventActionSkipped).
		WithCorrelationID(cycleID).
		WithAction(string(action.Action), action.Target).
		WithReason(action.Reason).
		WithResult(audit.ResultSkipped).
		WithDescription(result)
	_ = x.audit.Log(ctx, event)
}

func (x *Executor) recordOutcome(ctx context.Context, action engine.RecommendedAction, snap *telemetry.HealthSnapshot, result string, improvement float64) {
	success := strings.HasPrefix(result, "SUCCESS")
	outcome := &knowledge.ActionOutcome{
		ActionType:  string(action.Action),
		Target:      action.Target,
		Reason:      action.Reason,
		Result:      result,
		Success:     success,
		Timestamp:   time.Now(),
		StateHash:   knowledge.HashPattern(snap.Pattern()),
		Improvement: improvement,
	}
	if err := x.kb.RecordOutcome(ctx, outcome); err != nil {
		x.log.Warn("failed to record action outcome",
			zap.String("action", string(action.Action)),
			zap.Error(err),
		)
		return
	}
	metrics.OutcomesRecorded.WithLabelValues(string(action.Action), fmt.Sprintf("%t", success)).Inc()
}

// dispatch routes to the handler. A panicking handler becomes an ERROR
// result instead of taking the agent down.
func (x *Executor) dispatch(ctx context.Context, action engine.RecommendedAction, snap *telemetry.HealthSnapshot, cfg *config.Config) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("ERROR: %s handler panicked: %v", action.Action, r)
			x.log.Error("action handler panicked",
				zap.String("action", string(action.Action)),
				zap.Any("panic", r),
			)
		}
	}()

	switch action.Action {
	case engine.ActionClearCache:
		return x.clearCache(ctx)
	case engine.ActionThrottleCPU:
		return x.throttleCPU(ctx)
	case engine.ActionCleanLogs:
		return x.cleanLogs(ctx)
	case engine.ActionRestartFailedServices:
		return x.restartFailedServices(ctx, action, snap)
	case engine.ActionOptimizeNetwork:
		return x.optimizeNetwork(ctx, snap, cfg)
	case engine.ActionManageServices:
		return x.manageServices(ctx, action)
	case engine.ActionIncreaseSecurity:
		return x.increaseSecurity(ctx, snap)
	case engine.ActionBanIP:
		return x.banIP(ctx, action.Target)
	case engine.ActionInvestigateTrend:
		return x.investigateTrend(ctx, action.Target)
	default:
		return fmt.Sprintf("ERROR: unknown action %s", action.Action)
	}
}

func (x *Executor) clearCache(ctx context.Context) string {
	if _, err := x.runner.Run(ctx, "sync && echo 3 > /proc/sys/vm/drop_caches", 0); err != nil {
		return fmt.Sprintf("ERROR: failed to drop caches: %v", err)
	}
	return "SUCCESS: cleared memory caches"
}

func (x *Executor) throttleCPU(ctx context.Context) string {
	cmd := "for g in /sys/devices/system/cpu/cpu*/cpufreq/scaling_governor; do echo powersave > $g; done"
	if _, err := x.runner.Run(ctx, cmd, 0); err != nil {
		return fmt.Sprintf("ERROR: failed to set powersave governor: %v", err)
	}
	return "SUCCESS: throttled CPU to powersave governor"
}

func (x *Executor) cleanLogs(ctx context.Context) string {
	var failures []string
	steps := []string{
		"journalctl --vacuum-time=3d",
		"apt-get clean",
		"find /var/log -name '*.gz' -mtime +7 -delete",
	}
	for _, cmd := range steps {
		if _, err := x.runner.Run(ctx, cmd, 0); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", cmd, err))
		}
	}
	if len(failures) == len(steps) {
		return "ERROR: log cleanup failed: " + strings.Join(failures, "; ")
	}
	if len(failures) > 0 {
		return "SUCCESS: cleaned logs with warnings: " + strings.Join(failures, "; ")
	}
	return "SUCCESS: cleaned logs and package cache"
}

// restartFailedServices recovers failed units. With smart troubleshooting
// each unit gets a per-service diagnosis first; otherwise everything is
// reset and restarted wholesale.
func (x *Executor) restartFailedServices(ctx context.Context, action engine.RecommendedAction, snap *telemetry.HealthSnapshot) string {
	units := snap.Services.FailedUnits
	if len(units) == 0 {
		return "SUCCESS: no failed services to restart"
	}

	if !action.SmartTroubleshooting {
		if _, err := x.runner.Run(ctx, "systemctl reset-failed", 0); err != nil {
			return fmt.Sprintf("ERROR: failed to reset failed units: %v", err)
		}
		var errs []string
		for _, unit := range units {
			if _, err := x.runner.Run(ctx, "systemctl restart "+unit, 0); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", unit, err))
			}
		}
		if len(errs) > 0 {
			return fmt.Sprintf("ERROR: restarted %d/%d services: %s", len(units)-len(errs), len(units), strings.Join(errs, "; "))
		}
		return fmt.Sprintf("SUCCESS: restarted %d failed services", len(units))
	}

	var results []string
	for _, unit := range units {
		results = append(results, x.troubleshootUnit(ctx, unit))
	}
	combined := strings.Join(results, "; ")
	for _, r := range results {
		if strings.HasPrefix(r, "SUCCESS") {
			return "SUCCESS: " + combined
		}
	}
	return "ERROR: " + combined
}

// troubleshootUnit applies the per-service diagnosis path for one failed
// unit. cloudflared gets its tunnel config checked before anything else
// because a malformed config makes restarts pointless.
func (x *Executor) troubleshootUnit(ctx context.Context, unit string) string {
	if strings.Contains(unit, "cloudflared") {
		if err := troubleshoot.ValidateTunnelConfig(troubleshoot.DefaultTunnelConfigPath); err != nil {
			return troubleshoot.RepairTunnelConfig(ctx, troubleshoot.DefaultTunnelConfigPath, x.runner)
		}
	}

	statusOut, _ := x.runner.Run(ctx, "systemctl status "+unit+" --no-pager -l", 0)
	recs := x.ts.AnalyzeServiceIssue(ctx, unit, statusOut)
	if len(recs) > 0 {
		return x.ts.ExecuteSolution(ctx, recs[0], x.runner)
	}

	if _, err := x.runner.Run(ctx, "systemctl restart "+unit, 0); err != nil {
		return fmt.Sprintf("ERROR: failed to restart %s: %v", unit, err)
	}
	return fmt.Sprintf("SUCCESS: restarted %s", unit)
}

func (x *Executor) optimizeNetwork(ctx context.Context, snap *telemetry.HealthSnapshot, cfg *config.Config) string {
	var applied []string

	if snap.Network.PacketLossPercent > cfg.Thresholds.PacketLoss {
		if _, err := x.runner.Run(ctx, "systemctl restart networking || systemctl restart dhcpcd", 0); err != nil {
			return fmt.Sprintf("ERROR: failed to restart networking: %v", err)
		}
		applied = append(applied, "restarted networking")
	}

	if snap.Network.LatencyMs > cfg.Thresholds.Latency {
		if _, err := x.runner.Run(ctx, "resolvectl flush-caches || systemd-resolve --flush-caches", 0); err == nil {
			applied = append(applied, "flushed DNS caches")
		}
	}

	if len(applied) == 0 {
		return "SUCCESS: network within limits, nothing to optimize"
	}
	return "SUCCESS: " + strings.Join(applied, ", ")
}

func (x *Executor) manageServices(ctx context.Context, action engine.RecommendedAction) string {
	if action.Target != "" && action.Target != "stop_non_essential" {
		if _, err := x.runner.Run(ctx, "systemctl stop "+action.Target, 0); err != nil {
			return fmt.Sprintf("ERROR: failed to stop %s: %v", action.Target, err)
		}
		return fmt.Sprintf("SUCCESS: stopped %s", action.Target)
	}

	var stopped []string
	for _, svc := range nonEssentialServices {
		cmd := fmt.Sprintf("systemctl is-active --quiet %s && systemctl stop %s", svc, svc)
		if _, err := x.runner.Run(ctx, cmd, 0); err == nil {
			stopped = append(stopped, svc)
		}
	}
	if len(stopped) == 0 {
		return "SUCCESS: no non-essential services were running"
	}
	return "SUCCESS: stopped non-essential services: " + strings.Join(stopped, ", ")
}

func (x *Executor) increaseSecurity(ctx context.Context, snap *telemetry.HealthSnapshot) string {
	var applied []string
	var failures []string

	for ip, count := range snap.Security.SuspiciousIPs {
		if count <= suspiciousIPBanCount {
			continue
		}
		if _, err := x.runner.Run(ctx, "ufw insert 1 deny from "+ip, 0); err != nil {
			failures = append(failures, fmt.Sprintf("ban %s: %v", ip, err))
			continue
		}
		applied = append(applied, "banned "+ip)
	}

	if snap.Security.FailedLogins > sshBruteForceLogins {
		if _, err := x.runner.Run(ctx, "systemctl restart fail2ban", 0); err == nil {
			applied = append(applied, "restarted fail2ban")
		}
	}

	if len(applied) == 0 && len(failures) > 0 {
		return "ERROR: security hardening failed: " + strings.Join(failures, "; ")
	}
	if len(applied) == 0 {
		return "SUCCESS: no hosts exceeded the ban threshold"
	}
	result := "SUCCESS: " + strings.Join(applied, ", ")
	if len(failures) > 0 {
		result += " (failures: " + strings.Join(failures, "; ") + ")"
	}
	return result
}

func (x *Executor) banIP(ctx context.Context, ip string) string {
	if ip == "" {
		return "ERROR: ban_ip requires a target address"
	}
	if _, err := x.runner.Run(ctx, "ufw insert 1 deny from "+ip, 0); err != nil {
		return fmt.Sprintf("ERROR: failed to ban %s: %v", ip, err)
	}
	return fmt.Sprintf("SUCCESS: banned %s", ip)
}

// investigateTrend captures recent warnings from the journal, runs them
// through journal diagnosis and stores what it saw for later learning.
func (x *Executor) investigateTrend(ctx context.Context, metric string) string {
	journal, err := x.runner.Run(ctx, "journalctl -p warning -n 50 --no-pager", 0)
	if err != nil {
		return fmt.Sprintf("ERROR: failed to read journal for %s trend: %v", metric, err)
	}

	recs := x.ts.AnalyzeJournalIssues(journal)
	if len(recs) > 0 {
		return x.ts.ExecuteSolution(ctx, recs[0], x.runner)
	}

	sample := journal
	if len(sample) > 500 {
		sample = sample[:500]
	}
	if err := x.kb.StorePattern(ctx, "trend_investigation", map[string]any{
		"metric":         metric,
		"journal_sample": sample,
	}, 0.4, 0.5, ""); err != nil {
		x.log.Warn("failed to store trend investigation", zap.String("metric", metric), zap.Error(err))
	}
	return fmt.Sprintf("SUCCESS: investigated %s trend, no known issue in journal", metric)
}
