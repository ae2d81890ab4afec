package core

import "time"

// Orchestration event types emitted by the choreography rule engine. These
// are fire-and-forget notifications; no acknowledgement is awaited.
const (
	EventFrictionInjection   = "friction_injection"
	EventActivateResistance  = "activate_resistance"
	EventInvokeContradiction = "invoke_contradiction"
	EventIntroduceWildcard   = "introduce_wildcard"
	EventConflictInjection   = "conflict_injection"
)

// OrchestrationEvent describes one adjustment the choreography engine wants
// applied to upcoming turns. It names a target agent, never response text.
type OrchestrationEvent struct {
	Type          string            `json:"type"`
	RuleID        string            `json:"rule_id"`
	SessionID     string            `json:"session_id"`
	TargetAgentID string            `json:"target_agent_id"`
	Intensity     float64           `json:"intensity"`
	Parameters    map[string]string `json:"parameters,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// EventSink receives orchestration events. Implementations must not block
// the turn pipeline; delivery failures are logged, not surfaced.
type EventSink interface {
	Emit(event OrchestrationEvent)
}

// MultiSink fans one event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Emit(event OrchestrationEvent) {
	for _, s := range m {
		s.Emit(event)
	}
}
