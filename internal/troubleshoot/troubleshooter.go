// Package troubleshoot diagnoses failing systemd services from a small table
// of known-bad patterns plus learned patterns in the knowledge base, and
// executes the recommended fix through the command runner.
package troubleshoot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sergeyitaly/raspi-doctor/internal/knowledge"
	"github.com/sergeyitaly/raspi-doctor/internal/telemetry"
)

// Pattern types this package reads and writes in the knowledge base.
const (
	PatternTypeServiceIssue = "service_issue"
	PatternTypeServiceLogs  = "service_logs"
)

// learnedIssueThreshold is the floor applied on top of the store's default
// similarity cut-off; a learned match must clear both to be recommended.
const learnedIssueThreshold = 0.7

// Solution names the fixed set of behaviors ExecuteSolution knows.
type Solution string

const (
	SolutionDisableService   Solution = "disable_service"
	SolutionStopService      Solution = "stop_service"
	SolutionInvestigateLogs  Solution = "investigate_logs"
	SolutionReinstallService Solution = "reinstall_service"
	SolutionRepairTunnelConf Solution = "fix_cloudflared_config"
	SolutionNone             Solution = "none"
)

// Confidence grades a recommendation.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// Recommendation is one diagnosis with its suggested fix. The first element
// of an analysis result is authoritative: builtin matches are appended before
// learned ones.
type Recommendation struct {
	Service     string     `json:"service"`
	Issue       string     `json:"issue"`
	Reason      string     `json:"reason"`
	Solution    Solution   `json:"solution"`
	Alternative string     `json:"alternative"`
	Confidence  Confidence `json:"confidence"`
	Source      string     `json:"source"` // builtin_knowledge or learned_knowledge
	Similarity  float64    `json:"similarity,omitempty"`
}

// builtinRule is one entry of the static diagnosis table. Pattern matching is
// a case-insensitive substring test against the service name and its status
// output.
type builtinRule struct {
	issue       string
	pattern     string
	reason      string
	solution    Solution
	alternative string
}

// builtinRules fire in order; earlier entries win the authoritative slot.
var builtinRules = []builtinRule{
	{
		issue:       "rng-tools",
		pattern:     "rng-tools",
		reason:      "Hardware RNG not available on this board",
		solution:    SolutionDisableService,
		alternative: "install haveged for software entropy",
	},
	{
		issue:       "avahi-daemon",
		pattern:     "avahi-daemon",
		reason:      "mDNS discovery often conflicts on this board",
		solution:    SolutionStopService,
		alternative: "keep disabled if not needed for networking",
	},
	{
		issue:       "bluetooth",
		pattern:     "bluetooth",
		reason:      "High resource usage, often unnecessary",
		solution:    SolutionStopService,
		alternative: "enable only when needed",
	},
	{
		issue:       "cloudflared-config",
		pattern:     "error parsing yaml",
		reason:      "Tunnel config file is not valid YAML",
		solution:    SolutionRepairTunnelConf,
		alternative: "restore config from backup and re-enter tunnel ID",
	},
	{
		issue:       "failed-to-start",
		pattern:     "failed to start",
		reason:      "Service startup failure",
		solution:    SolutionInvestigateLogs,
		alternative: "check dependencies and configuration",
	},
	{
		issue:       "filesystem-recovery",
		pattern:     "recovering journal",
		reason:      "Filesystem recovered after unclean shutdown",
		solution:    SolutionInvestigateLogs,
		alternative: "check SD card health and power supply",
	},
}

// journalRules are the signatures matched against wider system logs, not one
// service's output.
var journalRules = []builtinRule{
	{
		issue:       "filesystem-recovery",
		pattern:     "recovery required",
		reason:      "Filesystem required recovery at boot, likely power loss",
		solution:    SolutionInvestigateLogs,
		alternative: "check SD card health and power supply",
	},
	{
		issue:       "readonly-filesystem",
		pattern:     "read-only",
		reason:      "A filesystem remounted read-only after errors",
		solution:    SolutionInvestigateLogs,
		alternative: "run fsck and inspect the storage medium",
	},
	{
		issue:       "ext4-errors",
		pattern:     "ext4-fs error",
		reason:      "ext4 reported on-disk errors",
		solution:    SolutionInvestigateLogs,
		alternative: "back up data and test the SD card",
	},
}

// Troubleshooter combines the builtin table with learned service patterns.
type Troubleshooter struct {
	kb  knowledge.Store
	log *zap.Logger
}

// New creates a Troubleshooter over the given knowledge base.
func New(kb knowledge.Store, log *zap.Logger) *Troubleshooter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Troubleshooter{kb: kb, log: log}
}

// AnalyzeServiceIssue diagnoses one failing service from its name and status
// output. Builtin matches come first (name matches grade high, status-only
// matches medium), then learned patterns above the similarity threshold.
func (t *Troubleshooter) AnalyzeServiceIssue(ctx context.Context, serviceName, statusOutput string) []Recommendation {
	var recs []Recommendation

	nameLower := strings.ToLower(serviceName)
	statusLower := strings.ToLower(statusOutput)

	for _, rule := range builtinRules {
		inName := strings.Contains(nameLower, rule.pattern)
		if !inName && !strings.Contains(statusLower, rule.pattern) {
			continue
		}
		confidence := ConfidenceMedium
		if inName {
			confidence = ConfidenceHigh
		}
		recs = append(recs, Recommendation{
			Service:     serviceName,
			Issue:       rule.issue,
			Reason:      rule.reason,
			Solution:    rule.solution,
			Alternative: rule.alternative,
			Confidence:  confidence,
			Source:      "builtin_knowledge",
		})
	}

	data := map[string]any{
		"service":       serviceName,
		"status_output": statusOutput,
	}
	// Query at the store's default threshold, then refilter locally.
	matches, err := t.kb.SimilarPatterns(ctx, data, knowledge.PatternQuery{
		Type: PatternTypeServiceIssue,
	})
	if err != nil {
		t.log.Warn("learned pattern lookup failed", zap.String("service", serviceName), zap.Error(err))
		return recs
	}
	for _, m := range matches {
		if m.Similarity <= learnedIssueThreshold {
			continue
		}
		confidence := ConfidenceMedium
		if m.Confidence > 0.7 {
			confidence = ConfidenceHigh
		}
		recs = append(recs, Recommendation{
			Service:     serviceName,
			Issue:       "learned_pattern",
			Reason:      fmt.Sprintf("Similar to previous issue (confidence: %.2f)", m.Confidence),
			Solution:    Solution(m.Solution),
			Alternative: "apply learned solution",
			Confidence:  confidence,
			Source:      "learned_knowledge",
			Similarity:  m.Similarity,
		})
	}

	return recs
}

// AnalyzeJournalIssues scans wider system logs for filesystem and power-loss
// signatures that are not tied to a single service.
func (t *Troubleshooter) AnalyzeJournalIssues(journalText string) []Recommendation {
	journalLower := strings.ToLower(journalText)

	var recs []Recommendation
	for _, rule := range journalRules {
		if !strings.Contains(journalLower, rule.pattern) {
			continue
		}
		recs = append(recs, Recommendation{
			Service:     "system",
			Issue:       rule.issue,
			Reason:      rule.reason,
			Solution:    rule.solution,
			Alternative: rule.alternative,
			Confidence:  ConfidenceMedium,
			Source:      "builtin_knowledge",
		})
	}
	return recs
}

// ExecuteSolution applies a recommendation through the runner and reports a
// SUCCESS:/ERROR: text result. It never returns an error: a failed fix is a
// result, not a crash.
func (t *Troubleshooter) ExecuteSolution(ctx context.Context, rec Recommendation, runner telemetry.Runner) string {
	service := rec.Service

	switch rec.Solution {
	case SolutionDisableService:
		if _, err := runner.Run(ctx, "systemctl disable "+service+" --now", 0); err != nil {
			return fmt.Sprintf("ERROR: failed to disable %s: %v", service, err)
		}
		if _, err := runner.Run(ctx, "systemctl mask "+service, 0); err != nil {
			return fmt.Sprintf("ERROR: failed to mask %s: %v", service, err)
		}
		return fmt.Sprintf("SUCCESS: disabled problematic service %s", service)

	case SolutionStopService:
		if _, err := runner.Run(ctx, "systemctl stop "+service, 0); err != nil {
			return fmt.Sprintf("ERROR: failed to stop %s: %v", service, err)
		}
		return fmt.Sprintf("SUCCESS: stopped non-essential service %s", service)

	case SolutionInvestigateLogs:
		logs, err := runner.Run(ctx, "journalctl -u "+service+" --no-pager -n 20", 0)
		if err != nil {
			return fmt.Sprintf("ERROR: failed to read %s logs: %v", service, err)
		}
		sample := logs
		if len(sample) > 500 {
			sample = sample[:500]
		}
		// Stored for future learning; a store failure downgrades the result
		// but the investigation itself succeeded.
		storeErr := t.kb.StorePattern(ctx, PatternTypeServiceLogs, map[string]any{
			"service":     service,
			"action":      string(SolutionInvestigateLogs),
			"logs_sample": sample,
		}, 0.3, 0.5, "")
		if storeErr != nil {
			t.log.Warn("failed to store service log pattern", zap.String("service", service), zap.Error(storeErr))
		}
		return fmt.Sprintf("SUCCESS: investigated %s logs", service)

	case SolutionReinstallService:
		pkg := strings.TrimSuffix(service, ".service")
		if _, err := runner.Run(ctx, "apt install --reinstall -y "+pkg, 0); err != nil {
			return fmt.Sprintf("ERROR: failed to reinstall %s: %v", pkg, err)
		}
		return fmt.Sprintf("SUCCESS: reinstalled %s", pkg)

	case SolutionRepairTunnelConf:
		return RepairTunnelConfig(ctx, DefaultTunnelConfigPath, runner)

	default:
		return fmt.Sprintf("SUCCESS: no action taken for %s", service)
	}
}
