// Package choreography evaluates diversity-trigger and conflict-injection
// rules against rolling metrics and emits orchestration events.
package choreography

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/soullab/oracle-choreography/core"
)

// Comparison directions for trigger conditions.
const (
	ComparisonBelow = "below"
	ComparisonAbove = "above"
)

// Metrics a trigger can observe.
const (
	MetricAgreementScore = "agreement_score"
	MetricDiversityIndex = "diversity_index"
	MetricConflictLevel  = "conflict_level"
)

// Target-selection strategies for rule actions.
const (
	TargetMostAgreeable = "most_agreeable"
	TargetLeastActive   = "least_active"
	TargetRandomAgent   = "random_agent"
	TargetSpecificAgent = "specific_agent"
)

// Trigger is a condition over one rolling metric.
type Trigger struct {
	Metric     string  `json:"metric"`
	Threshold  float64 `json:"threshold"`
	Comparison string  `json:"comparison"`
	WindowSize int     `json:"window_size"`
}

// Holds evaluates the trigger against a metrics snapshot.
func (t Trigger) Holds(m core.DiversityMetrics) bool {
	var value float64
	switch t.Metric {
	case MetricAgreementScore:
		value = m.AgreementScore
	case MetricDiversityIndex:
		value = m.DiversityIndex
	case MetricConflictLevel:
		value = m.ConflictLevel
	default:
		return false
	}
	if t.Comparison == ComparisonBelow {
		return value < t.Threshold
	}
	return value > t.Threshold
}

func (t Trigger) validate(source string) error {
	switch t.Metric {
	case MetricAgreementScore, MetricDiversityIndex, MetricConflictLevel:
	default:
		return &core.ValidationError{Source: source, Reason: fmt.Sprintf("unknown trigger metric %q", t.Metric)}
	}
	switch t.Comparison {
	case ComparisonBelow, ComparisonAbove:
	default:
		return &core.ValidationError{Source: source, Reason: fmt.Sprintf("unknown comparison %q", t.Comparison)}
	}
	if t.Threshold < 0 || t.Threshold > 1 {
		return &core.ValidationError{Source: source, Reason: "threshold must be in [0,1]"}
	}
	return nil
}

// Action parameter shapes, one closed variant per action type so rules are
// validated at load time rather than at fire time.

// FrictionParams tunes a friction_injection action.
type FrictionParams struct {
	Stance        string `json:"stance"`
	DurationTurns int    `json:"duration_turns"`
}

// ResistanceParams tunes an activate_resistance action.
type ResistanceParams struct {
	ResistanceKind string `json:"resistance_kind"`
}

// ContradictionParams tunes an invoke_contradiction action.
type ContradictionParams struct {
	Topic string `json:"topic"`
}

// WildcardParams tunes an introduce_wildcard action.
type WildcardParams struct {
	Pool []string `json:"pool"`
}

// ConflictParams tunes a conflict_injection action.
type ConflictParams struct {
	Style string `json:"style"`
}

// ActionParams is the tagged union of per-action parameter shapes. Exactly
// the variant matching the action type may be set.
type ActionParams struct {
	Friction      *FrictionParams      `json:"friction,omitempty"`
	Resistance    *ResistanceParams    `json:"resistance,omitempty"`
	Contradiction *ContradictionParams `json:"contradiction,omitempty"`
	Wildcard      *WildcardParams      `json:"wildcard,omitempty"`
	Conflict      *ConflictParams      `json:"conflict,omitempty"`
}

// Action describes the adjustment a fired rule applies.
type Action struct {
	Type          string       `json:"type"`
	Target        string       `json:"target"`
	TargetAgentID string       `json:"target_agent_id,omitempty"`
	Intensity     float64      `json:"intensity"`
	Params        ActionParams `json:"params"`
}

func (a Action) validate(source string) error {
	switch a.Type {
	case core.EventFrictionInjection, core.EventActivateResistance,
		core.EventInvokeContradiction, core.EventIntroduceWildcard,
		core.EventConflictInjection:
	default:
		return &core.ValidationError{Source: source, Reason: fmt.Sprintf("unknown action type %q", a.Type)}
	}

	switch a.Target {
	case TargetMostAgreeable, TargetLeastActive, TargetRandomAgent:
	case TargetSpecificAgent:
		if a.TargetAgentID == "" {
			return &core.ValidationError{Source: source, Reason: "specific_agent target requires target_agent_id"}
		}
	default:
		return &core.ValidationError{Source: source, Reason: fmt.Sprintf("unknown target strategy %q", a.Target)}
	}

	if a.Intensity < 0 || a.Intensity > 1 {
		return &core.ValidationError{Source: source, Reason: "intensity must be in [0,1]"}
	}

	// A params variant set for a different action type is a load-time error.
	variants := map[string]bool{
		core.EventFrictionInjection:   a.Params.Friction != nil,
		core.EventActivateResistance:  a.Params.Resistance != nil,
		core.EventInvokeContradiction: a.Params.Contradiction != nil,
		core.EventIntroduceWildcard:   a.Params.Wildcard != nil,
		core.EventConflictInjection:   a.Params.Conflict != nil,
	}
	for actionType, set := range variants {
		if set && actionType != a.Type {
			return &core.ValidationError{
				Source: source,
				Reason: fmt.Sprintf("params variant %q does not match action type %q", actionType, a.Type),
			}
		}
	}
	return nil
}

// eventParameters flattens the matching params variant into the string map
// carried on the emitted event.
func (a Action) eventParameters() map[string]string {
	params := make(map[string]string)
	switch {
	case a.Params.Friction != nil:
		params["stance"] = a.Params.Friction.Stance
		params["duration_turns"] = fmt.Sprintf("%d", a.Params.Friction.DurationTurns)
	case a.Params.Resistance != nil:
		params["resistance_kind"] = a.Params.Resistance.ResistanceKind
	case a.Params.Contradiction != nil:
		params["topic"] = a.Params.Contradiction.Topic
	case a.Params.Wildcard != nil:
		for i, p := range a.Params.Wildcard.Pool {
			params[fmt.Sprintf("pool_%d", i)] = p
		}
	case a.Params.Conflict != nil:
		params["style"] = a.Params.Conflict.Style
	}
	return params
}

// DiversityRule fires its action when the trigger holds and the rule's
// cooldown has elapsed. Cooldown state is per rule, per session.
type DiversityRule struct {
	ID              string  `json:"id"`
	Description     string  `json:"description"`
	Trigger         Trigger `json:"trigger"`
	Action          Action  `json:"action"`
	CooldownSeconds float64 `json:"cooldown_seconds"`
	Priority        int     `json:"priority"`
}

func (r DiversityRule) validate() error {
	if r.ID == "" {
		return &core.ValidationError{Source: "diversity rule", Reason: "missing id"}
	}
	if err := r.Trigger.validate(r.ID); err != nil {
		return err
	}
	if err := r.Action.validate(r.ID); err != nil {
		return err
	}
	if r.CooldownSeconds < 0 {
		return &core.ValidationError{Source: r.ID, Reason: "cooldown_seconds must be non-negative"}
	}
	return nil
}

// ConflictInjectionRule samples against Frequency each turn and fires
// whenever every precondition holds. It has no cooldown: under sustained
// trigger conditions it may fire every turn.
type ConflictInjectionRule struct {
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	Frequency     float64   `json:"frequency"`
	Preconditions []Trigger `json:"preconditions"`
	ConflictType  string    `json:"conflict_type"`
	Resolution    string    `json:"resolution"`
	Action        Action    `json:"action"`
}

func (r ConflictInjectionRule) validate() error {
	if r.ID == "" {
		return &core.ValidationError{Source: "conflict rule", Reason: "missing id"}
	}
	if r.Frequency < 0 || r.Frequency > 1 {
		return &core.ValidationError{Source: r.ID, Reason: "frequency must be in [0,1]"}
	}
	for _, pre := range r.Preconditions {
		if err := pre.validate(r.ID); err != nil {
			return err
		}
	}
	return r.Action.validate(r.ID)
}

// RuleSet is the full choreography configuration. Replacement is always
// whole-object and atomic with respect to in-flight evaluation.
type RuleSet struct {
	Version   string                  `json:"version"`
	Diversity []DiversityRule         `json:"diversity_rules"`
	Conflict  []ConflictInjectionRule `json:"conflict_rules"`
}

// LoadRuleSet reads a rule set from a JSON file. Individual malformed rules
// are logged and dropped; the load fails only if the file itself cannot be
// read or parsed.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}

	var raw RuleSet
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}

	return sanitizeRuleSet(&raw), nil
}

// sanitizeRuleSet drops invalid rules, logging each.
func sanitizeRuleSet(raw *RuleSet) *RuleSet {
	rs := &RuleSet{Version: raw.Version}
	for _, rule := range raw.Diversity {
		if err := rule.validate(); err != nil {
			log.Printf("Choreography: dropping diversity rule: %v", err)
			continue
		}
		rs.Diversity = append(rs.Diversity, rule)
	}
	for _, rule := range raw.Conflict {
		if err := rule.validate(); err != nil {
			log.Printf("Choreography: dropping conflict rule: %v", err)
			continue
		}
		rs.Conflict = append(rs.Conflict, rule)
	}
	return rs
}
