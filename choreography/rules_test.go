package choreography

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/soullab/oracle-choreography/core"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestLoadRuleSet_Valid(t *testing.T) {
	path := writeRules(t, `{
		"version": "1.2.0",
		"diversity_rules": [{
			"id": "wake-the-chorus",
			"description": "bring in a fresh voice when one agent dominates",
			"trigger": {"metric": "diversity_index", "threshold": 0.4, "comparison": "below", "window_size": 5},
			"action": {
				"type": "introduce_wildcard",
				"target": "least_active",
				"intensity": 0.7,
				"params": {"wildcard": {"pool": ["earth", "aether"]}}
			},
			"cooldown_seconds": 300,
			"priority": 10
		}],
		"conflict_rules": [{
			"id": "stir-the-pot",
			"frequency": 0.15,
			"preconditions": [{"metric": "agreement_score", "threshold": 0.8, "comparison": "above"}],
			"conflict_type": "elemental_opposition",
			"resolution": "let_it_breathe",
			"action": {"type": "conflict_injection", "target": "random_agent", "intensity": 0.5}
		}]
	}`)

	rs, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("LoadRuleSet: %v", err)
	}
	if rs.Version != "1.2.0" {
		t.Errorf("Version = %q", rs.Version)
	}
	if len(rs.Diversity) != 1 || len(rs.Conflict) != 1 {
		t.Fatalf("got %d diversity / %d conflict rules", len(rs.Diversity), len(rs.Conflict))
	}
	if rs.Diversity[0].Action.Params.Wildcard == nil {
		t.Error("wildcard params should be decoded")
	}
}

func TestLoadRuleSet_DropsMalformedRules(t *testing.T) {
	path := writeRules(t, `{
		"diversity_rules": [
			{
				"id": "ok",
				"trigger": {"metric": "conflict_level", "threshold": 0.6, "comparison": "above"},
				"action": {"type": "activate_resistance", "target": "most_agreeable", "intensity": 0.4},
				"cooldown_seconds": 60
			},
			{
				"id": "bad-metric",
				"trigger": {"metric": "vibe", "threshold": 0.5, "comparison": "above"},
				"action": {"type": "activate_resistance", "target": "most_agreeable"}
			},
			{
				"id": "bad-params",
				"trigger": {"metric": "conflict_level", "threshold": 0.5, "comparison": "above"},
				"action": {
					"type": "activate_resistance",
					"target": "most_agreeable",
					"params": {"wildcard": {"pool": ["x"]}}
				}
			}
		]
	}`)

	rs, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("LoadRuleSet: %v", err)
	}
	if len(rs.Diversity) != 1 {
		t.Fatalf("kept %d rules, want 1", len(rs.Diversity))
	}
	if rs.Diversity[0].ID != "ok" {
		t.Errorf("kept rule %s", rs.Diversity[0].ID)
	}
}

func TestLoadRuleSet_FileErrors(t *testing.T) {
	if _, err := LoadRuleSet("/nonexistent/rules.json"); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeRules(t, `{not json`)
	if _, err := LoadRuleSet(path); err == nil {
		t.Error("expected error for unparsable file")
	}
}

func TestActionValidate_SpecificAgentNeedsID(t *testing.T) {
	a := Action{Type: core.EventFrictionInjection, Target: TargetSpecificAgent}
	if err := a.validate("test"); err == nil {
		t.Error("specific_agent without id should fail validation")
	}
}

func TestTriggerHolds(t *testing.T) {
	m := core.DiversityMetrics{AgreementScore: 0.9, DiversityIndex: 0.2, ConflictLevel: 0.1}

	cases := []struct {
		name    string
		trigger Trigger
		want    bool
	}{
		{"above true", Trigger{Metric: MetricAgreementScore, Threshold: 0.8, Comparison: ComparisonAbove}, true},
		{"above false at equality", Trigger{Metric: MetricAgreementScore, Threshold: 0.9, Comparison: ComparisonAbove}, false},
		{"below true", Trigger{Metric: MetricDiversityIndex, Threshold: 0.4, Comparison: ComparisonBelow}, true},
		{"below false", Trigger{Metric: MetricConflictLevel, Threshold: 0.05, Comparison: ComparisonBelow}, false},
		{"unknown metric never holds", Trigger{Metric: "vibe", Threshold: 0.5, Comparison: ComparisonAbove}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.trigger.Holds(m); got != tc.want {
				t.Errorf("Holds = %v, want %v", got, tc.want)
			}
		})
	}
}
