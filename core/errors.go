package core

import (
	"errors"
	"fmt"
)

// ErrNoAgentsAvailable is returned when selection is asked to choose from an
// empty candidate set. Callers surface a degraded-mode response; they must
// not retry indefinitely.
var ErrNoAgentsAvailable = errors.New("no agents available for selection")

// ValidationError marks a malformed personality profile or choreography rule.
// Individual bad records are logged and skipped; a load is fatal only when
// nothing valid remains.
type ValidationError struct {
	Source string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Source, e.Reason)
}

// GenerationFailure records a generation collaborator error. It is absorbed
// into a fallback payload inside the agent instance and never escapes
// Respond; it exists so fallbacks can carry a structured cause.
type GenerationFailure struct {
	AgentID string
	Err     error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("agent %s generation failed: %v", e.AgentID, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// RuleEvaluationError wraps a failure inside a single choreography rule.
// The engine logs it and continues with the remaining rules.
type RuleEvaluationError struct {
	RuleID string
	Err    error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule %s evaluation failed: %v", e.RuleID, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }
