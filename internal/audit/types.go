package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Cycle events
	EventCycleStarted   EventType = "cycle.started"
	EventCycleCompleted EventType = "cycle.completed"
	EventCycleFailed    EventType = "cycle.failed"

	// Action events
	EventActionExecuted EventType = "action.executed"
	EventActionFailed   EventType = "action.failed"
	EventActionSkipped  EventType = "action.skipped"

	// Learning events
	EventPatternLearned EventType = "pattern.learned"
	EventTrendAlert     EventType = "trend.alert"

	// Fallback advisor events
	EventFallbackConsulted EventType = "fallback.consulted"

	// System events
	EventAgentStarted  EventType = "system.agent_started"
	EventAgentShutdown EventType = "system.agent_shutdown"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultSkipped Result = "skipped"
)

// Event represents a single audit event
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	// Action details
	Action      string                 `json:"action,omitempty"`
	Target      string                 `json:"target,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error string `json:"error,omitempty"`

	// Duration tracking
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultSuccess,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID for event tracking
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithAction sets the action being performed and its target
func (e *Event) WithAction(action, target string) *Event {
	e.Action = action
	e.Target = target
	return e
}

// WithReason sets the reason the action was recommended
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}
