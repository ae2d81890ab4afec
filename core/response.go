package core

import "time"

// ResponsePayload is what an agent instance hands back for one turn. The
// orchestrator treats Text as opaque; the signal lists feed the metrics
// aggregator.
type ResponsePayload struct {
	Text                 string   `json:"text"`
	ResistancesTriggered []string `json:"resistances_triggered"`
	ContradictionsActive []string `json:"contradictions_active"`
	PredictabilityIndex  float64  `json:"predictability_index,omitempty"`
	Fallback             bool     `json:"fallback,omitempty"`
	Error                string   `json:"error,omitempty"`
}

// HasConflictSignal reports whether the payload carries any resistance or
// contradiction markers.
func (p ResponsePayload) HasConflictSignal() bool {
	return len(p.ResistancesTriggered) > 0 || len(p.ContradictionsActive) > 0
}

// ResponseRecord is one completed turn as stored in the session history.
// Appended exactly once per turn, in turn-completion order.
type ResponseRecord struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id"`
	UserID    string          `json:"user_id"`
	Payload   ResponsePayload `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// DiversityMetrics are rolling statistics derived from a trailing window of
// the session history. They are recomputed after every append and are never
// set directly.
type DiversityMetrics struct {
	AgreementScore      float64   `json:"agreement_score"`
	DiversityIndex      float64   `json:"diversity_index"`
	ConflictLevel       float64   `json:"conflict_level"`
	LastDiversityAction time.Time `json:"last_diversity_action,omitzero"`
}

// UserProfile is the caller-supplied description of the end user, used by
// the selection engine for alignment scoring and explicit preferences.
type UserProfile struct {
	PreferredAgentID string            `json:"preferred_agent_id,omitempty"`
	ElementalBalance ElementalAffinity `json:"elemental_balance"`
	Intention        string            `json:"intention,omitempty"`
	EmotionalState   string            `json:"emotional_state,omitempty"`
}

// TurnContext carries everything about the caller's turn besides the raw
// input text.
type TurnContext struct {
	UserID           string            `json:"user_id"`
	SessionID        string            `json:"session_id"`
	UserProfile      *UserProfile      `json:"user_profile,omitempty"`
	SessionContext   map[string]string `json:"session_context,omitempty"`
	PreviousMessages []string          `json:"previous_messages,omitempty"`
}

// SessionKey is the canonical map key for one (user, session) pair.
func (c TurnContext) SessionKey() string {
	return c.UserID + "|" + c.SessionID
}
