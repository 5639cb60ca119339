package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sergeyitaly/raspi-doctor/internal/config"
	"github.com/sergeyitaly/raspi-doctor/internal/engine"
	"github.com/sergeyitaly/raspi-doctor/internal/knowledge"
	"github.com/sergeyitaly/raspi-doctor/internal/telemetry"
	"github.com/sergeyitaly/raspi-doctor/internal/troubleshoot"
)

// fakeRunner records commands and replies from a canned script.
type fakeRunner struct {
	commands []string
	replies  map[string]string
	failOn   string
}

func (r *fakeRunner) Run(ctx context.Context, command string, timeout time.Duration) (string, error) {
	r.commands = append(r.commands, command)
	if r.failOn != "" && strings.Contains(command, r.failOn) {
		return "", errors.New("exit status 1")
	}
	for prefix, out := range r.replies {
		if strings.Contains(command, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (r *fakeRunner) ran(substr string) bool {
	for _, cmd := range r.commands {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

// fakeStore is an in-memory knowledge base.
type fakeStore struct {
	outcomes []*knowledge.ActionOutcome
	patterns []map[string]any
}

func (s *fakeStore) StorePattern(ctx context.Context, patternType string, data map[string]any, severity, confidence float64, solution string) error {
	s.patterns = append(s.patterns, data)
	return nil
}

func (s *fakeStore) SimilarPatterns(ctx context.Context, data map[string]any, q knowledge.PatternQuery) ([]knowledge.Pattern, error) {
	return nil, nil
}

func (s *fakeStore) RecordOutcome(ctx context.Context, o *knowledge.ActionOutcome) error {
	s.outcomes = append(s.outcomes, o)
	return nil
}

func (s *fakeStore) ActionSuccessRate(ctx context.Context, actionType, target string) (*knowledge.ActionStats, error) {
	return &knowledge.ActionStats{SuccessRate: 0.5}, nil
}

func (s *fakeStore) StoreMetric(ctx context.Context, name string, value float64, metricContext string) error {
	return nil
}

func (s *fakeStore) MetricSamples(ctx context.Context, name string, window time.Duration) ([]knowledge.MetricSample, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func newTestExecutor(runner *fakeRunner, store *fakeStore) *Executor {
	ts := troubleshoot.New(store, nil)
	return New(store, runner, nil, ts, nil, nil)
}

func snapshot() *telemetry.HealthSnapshot {
	return &telemetry.HealthSnapshot{Timestamp: time.Now()}
}

func TestExecuteDisabledActionIsSkipped(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	cfg := config.DefaultConfig()
	cfg.Actions["auto_clear_cache"] = false

	result, executed := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionClearCache,
		Reason: "Memory usage high",
	}, snapshot(), cfg)

	if executed {
		t.Error("disabled action should not execute")
	}
	if result != "Action not enabled or not found" {
		t.Errorf("unexpected result %q", result)
	}
	if len(runner.commands) != 0 {
		t.Errorf("no commands should run, got %v", runner.commands)
	}
	if len(store.outcomes) != 1 || store.outcomes[0].Success {
		t.Fatalf("expected one unsuccessful outcome, got %+v", store.outcomes)
	}
}

func TestExecuteMissingToggleDefaultsEnabled(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	cfg := config.DefaultConfig()
	delete(cfg.Actions, "auto_clear_cache")

	result, executed := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionClearCache,
		Reason: "Memory usage high",
	}, snapshot(), cfg)

	if !executed {
		t.Fatal("action with no toggle should default to enabled")
	}
	if !strings.HasPrefix(result, "SUCCESS") {
		t.Errorf("expected SUCCESS, got %q", result)
	}
	if !runner.ran("drop_caches") {
		t.Errorf("expected drop_caches command, got %v", runner.commands)
	}
}

func TestExecuteRecordsOutcomeWithStateHash(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	snap := snapshot()
	snap.Memory.Percent = 92

	x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionCleanLogs,
		Target: "disk",
		Reason: "Disk usage high: 94.0%",
	}, snap, config.DefaultConfig())

	if len(store.outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(store.outcomes))
	}
	o := store.outcomes[0]
	if o.ActionType != "clean_logs" {
		t.Errorf("expected action_type clean_logs, got %s", o.ActionType)
	}
	if !o.Success {
		t.Errorf("expected success, result was %q", o.Result)
	}
	if o.StateHash != knowledge.HashPattern(snap.Pattern()) {
		t.Error("state hash must bind the outcome to the snapshot")
	}
}

func TestExecuteFailedCommandYieldsErrorResult(t *testing.T) {
	runner := &fakeRunner{failOn: "drop_caches"}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	result, executed := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionClearCache,
	}, snapshot(), config.DefaultConfig())

	if !executed {
		t.Fatal("failed action still counts as executed")
	}
	if !strings.HasPrefix(result, "ERROR") {
		t.Errorf("expected ERROR result, got %q", result)
	}
	if len(store.outcomes) != 1 || store.outcomes[0].Success {
		t.Fatalf("expected one failed outcome, got %+v", store.outcomes)
	}
}

func TestRestartFailedServicesPlain(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	snap := snapshot()
	snap.Services.FailedCount = 2
	snap.Services.FailedUnits = []string{"nginx.service", "redis.service"}

	result, _ := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionRestartFailedServices,
		Reason: "2 services have failed",
	}, snap, config.DefaultConfig())

	if !strings.HasPrefix(result, "SUCCESS") {
		t.Fatalf("expected SUCCESS, got %q", result)
	}
	if !runner.ran("systemctl reset-failed") {
		t.Error("expected reset-failed before restarts")
	}
	if !runner.ran("systemctl restart nginx.service") || !runner.ran("systemctl restart redis.service") {
		t.Errorf("expected both units restarted, got %v", runner.commands)
	}
}

func TestRestartFailedServicesSmartUsesDiagnosis(t *testing.T) {
	// avahi-daemon matches a builtin rule whose solution is stop, so the
	// smart path must stop it rather than restart it.
	runner := &fakeRunner{replies: map[string]string{
		"systemctl status": "avahi-daemon.service failed",
	}}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	snap := snapshot()
	snap.Services.FailedCount = 1
	snap.Services.FailedUnits = []string{"avahi-daemon.service"}

	result, _ := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action:               engine.ActionRestartFailedServices,
		Reason:               "1 services have failed",
		SmartTroubleshooting: true,
	}, snap, config.DefaultConfig())

	if !strings.HasPrefix(result, "SUCCESS") {
		t.Fatalf("expected SUCCESS, got %q", result)
	}
	if !runner.ran("systemctl stop avahi-daemon.service") {
		t.Errorf("expected stop for avahi-daemon, got %v", runner.commands)
	}
	if runner.ran("systemctl restart avahi-daemon.service") {
		t.Error("smart path must not blanket-restart a service with a known fix")
	}
}

func TestIncreaseSecurityBansOnlyAboveThreshold(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	snap := snapshot()
	snap.Security.FailedLogins = 30
	snap.Security.SuspiciousIPs = map[string]int{
		"1.2.3.4": 25,
		"5.6.7.8": 3,
	}

	result, _ := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionIncreaseSecurity,
		Reason: "30 failed login attempts detected",
	}, snap, config.DefaultConfig())

	if !strings.HasPrefix(result, "SUCCESS") {
		t.Fatalf("expected SUCCESS, got %q", result)
	}
	if !runner.ran("deny from 1.2.3.4") {
		t.Errorf("expected ban for 1.2.3.4, got %v", runner.commands)
	}
	if runner.ran("deny from 5.6.7.8") {
		t.Error("must not ban an address below the threshold")
	}
	if len(store.outcomes) != 1 || !store.outcomes[0].Success {
		t.Fatalf("expected one successful outcome, got %+v", store.outcomes)
	}
}

func TestManageServicesStopsNonEssential(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	result, _ := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionManageServices,
		Target: "stop_non_essential",
		Reason: "System load high",
	}, snapshot(), config.DefaultConfig())

	if !strings.HasPrefix(result, "SUCCESS") {
		t.Fatalf("expected SUCCESS, got %q", result)
	}
	for _, svc := range []string{"bluetooth", "avahi-daemon", "triggerhappy", "wolfram-engine"} {
		if !runner.ran(svc) {
			t.Errorf("expected stop attempt for %s", svc)
		}
	}
}

func TestOptimizeNetworkConditionals(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	cfg := config.DefaultConfig()
	snap := snapshot()
	snap.Network.PacketLossPercent = cfg.Thresholds.PacketLoss + 1
	snap.Network.LatencyMs = cfg.Thresholds.Latency - 1

	x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionOptimizeNetwork,
	}, snap, cfg)

	if !runner.ran("restart networking") {
		t.Error("expected networking restart on packet loss")
	}
	if runner.ran("flush-caches") {
		t.Error("latency below threshold must not flush DNS")
	}
}

func TestBanIPRequiresTarget(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	result, _ := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionBanIP,
	}, snapshot(), config.DefaultConfig())

	if !strings.HasPrefix(result, "ERROR") {
		t.Errorf("expected ERROR for empty target, got %q", result)
	}
}

func TestInvestigateTrendStoresPattern(t *testing.T) {
	runner := &fakeRunner{replies: map[string]string{
		"journalctl -p warning": "nothing notable here",
	}}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	result, _ := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionInvestigateTrend,
		Target: "cpu_temperature",
		Reason: "cpu_temperature is degrading",
	}, snapshot(), config.DefaultConfig())

	if !strings.HasPrefix(result, "SUCCESS") {
		t.Fatalf("expected SUCCESS, got %q", result)
	}
	if len(store.patterns) != 1 {
		t.Fatalf("expected one stored pattern, got %d", len(store.patterns))
	}
	if store.patterns[0]["metric"] != "cpu_temperature" {
		t.Errorf("pattern should carry the metric name, got %v", store.patterns[0])
	}
}

func TestExecuteNoneIsNoop(t *testing.T) {
	runner := &fakeRunner{}
	store := &fakeStore{}
	x := newTestExecutor(runner, store)

	_, executed := x.Execute(context.Background(), "cycle-1", engine.RecommendedAction{
		Action: engine.ActionNone,
	}, snapshot(), config.DefaultConfig())

	if executed {
		t.Error("none must not execute")
	}
	if len(runner.commands) != 0 || len(store.outcomes) != 0 {
		t.Error("none must not run commands or record outcomes")
	}
}
