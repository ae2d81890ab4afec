package selection

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/soullab/oracle-choreography/core"
	"github.com/soullab/oracle-choreography/registry"
)

func fireProfile() core.PersonalityProfile {
	return core.PersonalityProfile{
		ID: "fire", Name: "The Fire Oracle", Version: "1.0.0", Element: "fire",
		Affinity:           core.ElementalAffinity{Fire: 0.8, Air: 0.2},
		Keywords:           []string{"passion", "ignite", "transform"},
		ArchetypeResonance: map[string]float64{"Phoenix": 0.9},
	}
}

func waterProfile() core.PersonalityProfile {
	return core.PersonalityProfile{
		ID: "water", Name: "The Water Oracle", Version: "1.0.0", Element: "water",
		Affinity: core.ElementalAffinity{Water: 0.8, Earth: 0.2},
		Keywords: []string{"grief", "flow", "feel"},
	}
}

func earthProfile() core.PersonalityProfile {
	return core.PersonalityProfile{
		ID: "earth", Name: "The Earth Oracle", Version: "1.0.0", Element: "earth",
		Affinity: core.ElementalAffinity{Earth: 0.9, Water: 0.1},
		Keywords: []string{"ground", "steady", "practical"},
	}
}

func testEngine(t *testing.T, cfg Config, seed int64) *Engine {
	t.Helper()
	reg, err := registry.New(fireProfile(), waterProfile(), earthProfile())
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	e, err := NewEngine(reg, cfg, rand.NewSource(seed))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestSelectAgent_EmptyCandidates(t *testing.T) {
	e := testEngine(t, Config{Strategy: StrategyContextOptimal}, 1)
	_, err := e.SelectAgent("anything", core.TurnContext{}, nil, nil)
	if !errors.Is(err, core.ErrNoAgentsAvailable) {
		t.Fatalf("err = %v, want ErrNoAgentsAvailable", err)
	}
}

func TestNewEngine_RejectsNonPositiveWeights(t *testing.T) {
	reg, _ := registry.New(fireProfile())
	_, err := NewEngine(reg, Config{Weights: Weights{}}, rand.NewSource(1))
	if err == nil {
		t.Fatal("expected error for zero-sum weights")
	}
}

func TestNewEngine_RejectsUnknownStrategy(t *testing.T) {
	reg, _ := registry.New(fireProfile())
	_, err := NewEngine(reg, Config{Strategy: "chaotic", Weights: DefaultWeights()}, rand.NewSource(1))
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestContextOptimal_PicksHighestKeywordFit(t *testing.T) {
	e := testEngine(t, Config{Strategy: StrategyContextOptimal}, 1)
	candidates := []string{"fire", "water", "earth"}

	got, err := e.SelectAgent("I want to transform and ignite my passion", core.TurnContext{}, candidates, nil)
	if err != nil {
		t.Fatalf("SelectAgent: %v", err)
	}
	if got != "fire" {
		t.Errorf("selected %s, want fire", got)
	}
}

func TestContextOptimal_TieBreaksFirstSeen(t *testing.T) {
	e := testEngine(t, Config{Strategy: StrategyContextOptimal}, 1)
	// No keyword hits anywhere, no user profile, empty window: all scores equal.
	got, err := e.SelectAgent("hello", core.TurnContext{}, []string{"water", "fire", "earth"}, nil)
	if err != nil {
		t.Fatalf("SelectAgent: %v", err)
	}
	if got != "water" {
		t.Errorf("tie must resolve to first-seen candidate, got %s", got)
	}
}

func TestRoundRobin_StrictRotation(t *testing.T) {
	e := testEngine(t, Config{Strategy: StrategyRoundRobin}, 1)
	candidates := []string{"fire", "water", "earth"}

	want := []string{"fire", "water", "earth", "fire", "water"}
	for i, expected := range want {
		got, err := e.SelectAgent("ignite passion", core.TurnContext{}, candidates, nil)
		if err != nil {
			t.Fatalf("SelectAgent #%d: %v", i, err)
		}
		if got != expected {
			t.Errorf("rotation step %d = %s, want %s", i, got, expected)
		}
	}
}

func TestRandom_IgnoresScoresAndIsSeedDeterministic(t *testing.T) {
	candidates := []string{"fire", "water", "earth"}

	a := testEngine(t, Config{Strategy: StrategyRandom}, 42)
	b := testEngine(t, Config{Strategy: StrategyRandom}, 42)
	for i := 0; i < 10; i++ {
		ga, _ := a.SelectAgent("ignite", core.TurnContext{}, candidates, nil)
		gb, _ := b.SelectAgent("ignite", core.TurnContext{}, candidates, nil)
		if ga != gb {
			t.Fatalf("same seed diverged at draw %d: %s vs %s", i, ga, gb)
		}
	}
}

func TestUserPreference_HonoredAboveFloor(t *testing.T) {
	e := testEngine(t, Config{Strategy: StrategyUserPreference, PreferenceFloor: 0.1}, 1)
	tctx := core.TurnContext{UserProfile: &core.UserProfile{
		PreferredAgentID: "water",
		ElementalBalance: core.ElementalAffinity{Water: 0.8, Earth: 0.2},
	}}

	got, err := e.SelectAgent("hello", tctx, []string{"fire", "water", "earth"}, nil)
	if err != nil {
		t.Fatalf("SelectAgent: %v", err)
	}
	if got != "water" {
		t.Errorf("selected %s, want preferred water", got)
	}
}

func TestUserPreference_FallsBackBelowFloor(t *testing.T) {
	e := testEngine(t, Config{Strategy: StrategyUserPreference, PreferenceFloor: 0.99}, 1)
	tctx := core.TurnContext{UserProfile: &core.UserProfile{PreferredAgentID: "water"}}

	got, err := e.SelectAgent("I want to transform and ignite my passion", tctx, []string{"fire", "water", "earth"}, nil)
	if err != nil {
		t.Fatalf("SelectAgent: %v", err)
	}
	if got == "water" {
		t.Error("preference below floor must fall back to context_optimal")
	}
}

func TestDiversityWeighted_SeedDeterministic(t *testing.T) {
	candidates := []string{"fire", "water", "earth"}
	a := testEngine(t, Config{Strategy: StrategyDiversityWeighted}, 7)
	b := testEngine(t, Config{Strategy: StrategyDiversityWeighted}, 7)
	for i := 0; i < 10; i++ {
		ga, _ := a.SelectAgent("ignite passion", core.TurnContext{}, candidates, nil)
		gb, _ := b.SelectAgent("ignite passion", core.TurnContext{}, candidates, nil)
		if ga != gb {
			t.Fatalf("same seed diverged at draw %d", i)
		}
	}
}

func TestScoring_RecentSpeakerPenalized(t *testing.T) {
	e := testEngine(t, Config{Strategy: StrategyContextOptimal}, 1)
	window := []core.ResponseRecord{
		{AgentID: "fire"}, {AgentID: "fire"}, {AgentID: "fire"},
	}

	ranked := e.Rank("hello", core.TurnContext{}, []string{"fire", "water"}, window)
	if ranked[0].AgentID == "fire" {
		t.Error("agent occupying the whole window should rank below a fresh agent")
	}
}

func TestRank_SortedWithIDTieBreak(t *testing.T) {
	e := testEngine(t, Config{Strategy: StrategyContextOptimal}, 1)
	ranked := e.Rank("hello", core.TurnContext{}, []string{"water", "fire", "earth"}, nil)
	if len(ranked) != 3 {
		t.Fatalf("Rank returned %d entries, want 3", len(ranked))
	}
	// All scores equal here, so ordering falls back to id ascending.
	want := []string{"earth", "fire", "water"}
	for i, sc := range ranked {
		if sc.AgentID != want[i] {
			t.Errorf("ranked[%d] = %s, want %s", i, sc.AgentID, want[i])
		}
	}
}
