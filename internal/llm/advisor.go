// Package llm consults a local Ollama model when rule-based analysis finds
// recommended actions but none of them could be executed. The model is a
// fallback advisor, never an authority: its suggestion is parsed into the
// same action vocabulary the rule engine uses and runs through the same
// executor gating.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Suggestion is one remediation proposal returned by the advisor.
type Suggestion struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// Advisor produces a remediation suggestion from the current system state.
type Advisor interface {
	Consult(ctx context.Context, state map[string]any) (*Suggestion, error)
}

// FallbackSuggestion is returned when the model is unreachable or its output
// cannot be parsed. Action "none" is a no-op in the executor.
func FallbackSuggestion() *Suggestion {
	return &Suggestion{Action: "none", Reason: "fallback advisor unavailable"}
}

const systemPrompt = `You are a Raspberry Pi system administrator. Given the JSON health snapshot below, suggest exactly one corrective action.

Respond with a single JSON object and nothing else:
{"action": "<one of: clear_cache, throttle_cpu, clean_logs, restart_failed_services, optimize_network, manage_services, increase_security, none>", "target": "<what the action applies to>", "reason": "<one sentence>"}

Health snapshot:
`

// buildPrompt renders the state into the advisor prompt.
func buildPrompt(state map[string]any) (string, error) {
	body, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return systemPrompt + string(body), nil
}

// extractSuggestion pulls the first JSON object out of loose model output.
// Small local models wrap JSON in prose more often than not.
func extractSuggestion(raw string) (*Suggestion, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	var s Suggestion
	if err := json.Unmarshal([]byte(raw[start:end+1]), &s); err != nil {
		return nil, err
	}
	s.Action = strings.TrimSpace(strings.ToLower(s.Action))
	if s.Action == "" {
		return nil, errNoJSON
	}
	return &s, nil
}
