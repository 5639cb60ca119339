package engine

// ActionType is the closed set of remediation actions the executor knows how
// to dispatch. Keeping it a typed constant set (instead of free-form strings)
// lets the dispatch table be checked for exhaustiveness.
type ActionType string

const (
	ActionClearCache            ActionType = "clear_cache"
	ActionThrottleCPU           ActionType = "throttle_cpu"
	ActionCleanLogs             ActionType = "clean_logs"
	ActionRestartFailedServices ActionType = "restart_failed_services"
	ActionOptimizeNetwork       ActionType = "optimize_network"
	ActionManageServices        ActionType = "manage_services"
	ActionIncreaseSecurity      ActionType = "increase_security"
	ActionBanIP                 ActionType = "ban_ip"
	ActionInvestigateTrend      ActionType = "investigate_trend"
	ActionNone                  ActionType = "none"
)

// Priority orders recommended actions. The ordering is a total preorder:
// equal priorities keep their insertion order (stable sort).
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to its sort weight; unknown priorities sink to 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// RecommendedAction is a transient value produced fresh each cycle and
// consumed immediately by the executor. Never persisted.
type RecommendedAction struct {
	Action   ActionType `json:"action"`
	Target   string     `json:"target,omitempty"`
	Priority Priority   `json:"priority"`
	Reason   string     `json:"reason"`

	// Learned marks actions that came out of the pattern store rather than
	// a static threshold rule; Similarity carries the match score.
	Learned    bool    `json:"learned,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`

	// SmartTroubleshooting routes the action through per-service diagnosis
	// instead of a blanket restart.
	SmartTroubleshooting bool `json:"smart_troubleshooting,omitempty"`
}
