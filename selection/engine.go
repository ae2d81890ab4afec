// Package selection scores candidate agents for a turn and resolves one
// winner through a configurable strategy.
package selection

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/soullab/oracle-choreography/core"
	"github.com/soullab/oracle-choreography/registry"
)

// Strategy names accepted in Config.
const (
	StrategyContextOptimal    = "context_optimal"
	StrategyDiversityWeighted = "diversity_weighted"
	StrategyUserPreference    = "user_preference"
	StrategyRandom            = "random"
	StrategyRoundRobin        = "round_robin"
)

// Weights for the per-candidate score components. They must sum to a
// positive total but are not required to sum to 1.
type Weights struct {
	UserAlignment  float64 `json:"user_alignment"`
	ContextFit     float64 `json:"context_fit"`
	DiversityBonus float64 `json:"diversity_bonus"`
	RecencyPenalty float64 `json:"recency_penalty"`
}

// DefaultWeights mirrors the shipped strategy configuration.
func DefaultWeights() Weights {
	return Weights{UserAlignment: 0.3, ContextFit: 0.3, DiversityBonus: 0.25, RecencyPenalty: 0.15}
}

// Config is the active strategy configuration.
type Config struct {
	Strategy        string  `json:"strategy"`
	Weights         Weights `json:"weights"`
	PreferenceFloor float64 `json:"preference_floor"`
}

// ScoredCandidate pairs an agent id with its computed score.
type ScoredCandidate struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// Engine scores candidates and applies the configured strategy. The random
// source is injected so draws are reproducible in tests.
type Engine struct {
	registry *registry.Registry
	cfg      Config

	mu      sync.Mutex
	rng     *rand.Rand
	rrIndex int
}

// NewEngine validates the configuration and builds an engine. A nil source
// would make draws unpredictable in tests, so it is required.
func NewEngine(reg *registry.Registry, cfg Config, src rand.Source) (*Engine, error) {
	total := cfg.Weights.UserAlignment + cfg.Weights.ContextFit + cfg.Weights.DiversityBonus + cfg.Weights.RecencyPenalty
	if total <= 0 {
		return nil, fmt.Errorf("selection weights must sum to a positive total, got %v", total)
	}
	switch cfg.Strategy {
	case StrategyContextOptimal, StrategyDiversityWeighted, StrategyUserPreference, StrategyRandom, StrategyRoundRobin:
	case "":
		cfg.Strategy = StrategyContextOptimal
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", cfg.Strategy)
	}
	if src == nil {
		return nil, fmt.Errorf("selection engine requires a random source")
	}
	return &Engine{registry: reg, cfg: cfg, rng: rand.New(src)}, nil
}

// SelectAgent resolves one agent id for the turn. The window is the trailing
// history slice used for diversity and recency scoring. An empty candidate
// list fails with core.ErrNoAgentsAvailable.
func (e *Engine) SelectAgent(input string, tctx core.TurnContext, candidates []string, window []core.ResponseRecord) (string, error) {
	if len(candidates) == 0 {
		return "", core.ErrNoAgentsAvailable
	}

	scores := e.scoreAll(input, tctx, candidates, window)

	switch e.cfg.Strategy {
	case StrategyDiversityWeighted:
		return e.weightedDraw(candidates, scores), nil
	case StrategyUserPreference:
		return e.userPreference(tctx, candidates, scores), nil
	case StrategyRandom:
		return e.uniformDraw(candidates), nil
	case StrategyRoundRobin:
		return e.roundRobin(candidates), nil
	default:
		return contextOptimal(candidates, scores), nil
	}
}

// Rank returns every candidate with its score, sorted descending; equal
// scores are ordered by agent id. Used for the alternative-candidate
// metadata, independent of the active strategy.
func (e *Engine) Rank(input string, tctx core.TurnContext, candidates []string, window []core.ResponseRecord) []ScoredCandidate {
	scores := e.scoreAll(input, tctx, candidates, window)
	ranked := make([]ScoredCandidate, 0, len(candidates))
	for _, id := range candidates {
		ranked = append(ranked, ScoredCandidate{AgentID: id, Score: scores[id]})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].AgentID < ranked[j].AgentID
	})
	return ranked
}

func (e *Engine) scoreAll(input string, tctx core.TurnContext, candidates []string, window []core.ResponseRecord) map[string]float64 {
	scores := make(map[string]float64, len(candidates))
	for _, id := range candidates {
		scores[id] = e.score(id, input, tctx, window)
	}
	return scores
}

// score combines the four weighted components and clamps to [0,1].
func (e *Engine) score(agentID, input string, tctx core.TurnContext, window []core.ResponseRecord) float64 {
	profile, ok := e.registry.Get(agentID)
	if !ok {
		return 0
	}
	w := e.cfg.Weights
	raw := w.UserAlignment*userAlignment(profile, tctx) +
		w.ContextFit*contextFit(profile, input) +
		w.DiversityBonus*diversityBonus(agentID, window) -
		w.RecencyPenalty*recencyPenalty(agentID, window)
	return clamp01(raw)
}

// userAlignment measures how close the profile sits to the caller's elemental
// balance. Neutral 0.5 when the caller supplied no profile.
func userAlignment(profile core.PersonalityProfile, tctx core.TurnContext) float64 {
	if tctx.UserProfile == nil {
		return 0.5
	}
	return 1 - profile.Affinity.Distance(tctx.UserProfile.ElementalBalance)
}

// contextFit is the fraction of the profile's keywords present in the input,
// with archetype name mentions counting as keyword hits.
func contextFit(profile core.PersonalityProfile, input string) float64 {
	lowered := strings.ToLower(input)
	terms := len(profile.Keywords) + len(profile.ArchetypeResonance)
	if terms == 0 {
		return 0.5
	}
	var hits int
	for _, kw := range profile.Keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			hits++
		}
	}
	for name := range profile.ArchetypeResonance {
		if strings.Contains(lowered, strings.ToLower(name)) {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(terms))
}

// diversityBonus rewards agents that have not spoken recently.
func diversityBonus(agentID string, window []core.ResponseRecord) float64 {
	if len(window) == 0 {
		return 1
	}
	var appearances int
	for _, rec := range window {
		if rec.AgentID == agentID {
			appearances++
		}
	}
	return 1 - float64(appearances)/float64(len(window))
}

// recencyPenalty grows with how recently and how often the agent appeared;
// the most recent speaker carries the heaviest penalty.
func recencyPenalty(agentID string, window []core.ResponseRecord) float64 {
	if len(window) == 0 {
		return 0
	}
	var penalty float64
	n := len(window)
	for i, rec := range window {
		if rec.AgentID == agentID {
			// Later records weigh more: position 1..n scaled to (0,1].
			penalty += float64(i+1) / float64(n)
		}
	}
	return clamp01(penalty / float64(n))
}

// contextOptimal is argmax over scores; ties resolve to the first-seen
// candidate in iteration order. The deterministic tie-break is deliberate.
func contextOptimal(candidates []string, scores map[string]float64) string {
	best := candidates[0]
	for _, id := range candidates[1:] {
		if scores[id] > scores[best] {
			best = id
		}
	}
	return best
}

// weightedDraw picks proportionally to score. Distinct from argmax: a lower
// scored candidate can still win. Zero total mass degrades to uniform.
func (e *Engine) weightedDraw(candidates []string, scores map[string]float64) string {
	var total float64
	for _, id := range candidates {
		total += scores[id]
	}
	if total <= 0 {
		return e.uniformDraw(candidates)
	}

	e.mu.Lock()
	target := e.rng.Float64() * total
	e.mu.Unlock()

	var cumulative float64
	for _, id := range candidates {
		cumulative += scores[id]
		if target < cumulative {
			return id
		}
	}
	return candidates[len(candidates)-1]
}

// userPreference honors an explicitly preferred agent when its score clears
// the configured floor, otherwise falls back to context_optimal.
func (e *Engine) userPreference(tctx core.TurnContext, candidates []string, scores map[string]float64) string {
	if tctx.UserProfile != nil && tctx.UserProfile.PreferredAgentID != "" {
		preferred := tctx.UserProfile.PreferredAgentID
		for _, id := range candidates {
			if id == preferred && scores[id] >= e.cfg.PreferenceFloor {
				return id
			}
		}
	}
	return contextOptimal(candidates, scores)
}

func (e *Engine) uniformDraw(candidates []string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return candidates[e.rng.Intn(len(candidates))]
}

// roundRobin rotates through candidates regardless of score. The index
// persists across calls.
func (e *Engine) roundRobin(candidates []string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := candidates[e.rrIndex%len(candidates)]
	e.rrIndex++
	return id
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
