package choreography

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/soullab/oracle-choreography/core"
	"github.com/soullab/oracle-choreography/registry"
)

// RuleState describes where a diversity rule sits in its firing cycle.
type RuleState int

const (
	StateIdle RuleState = iota
	StateEligible
	StateFired
	StateCooling
)

func (s RuleState) String() string {
	switch s {
	case StateEligible:
		return "eligible"
	case StateFired:
		return "fired"
	case StateCooling:
		return "cooling"
	default:
		return "idle"
	}
}

// EvalInput is everything one evaluation pass reads and updates. LastFired
// is owned by the caller's session state; the engine reads and writes it so
// cooldowns are per rule, per session.
type EvalInput struct {
	SessionID        string
	InitiatorAgentID string
	Metrics          core.DiversityMetrics
	Window           []core.ResponseRecord
	LastFired        map[string]time.Time
}

// Engine evaluates the active rule set. Rule-set replacement takes the write
// lock, so an evaluation pass always sees one consistent rule set.
type Engine struct {
	registry *registry.Registry
	clock    func() time.Time

	rulesMu sync.RWMutex
	rules   *RuleSet

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine builds a rule engine. The random source drives conflict-rule
// Bernoulli trials and random targeting; a nil clock defaults to time.Now.
func NewEngine(reg *registry.Registry, rules *RuleSet, src rand.Source, clock func() time.Time) *Engine {
	if rules == nil {
		rules = &RuleSet{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		registry: reg,
		rules:    rules,
		rng:      rand.New(src),
		clock:    clock,
	}
}

// ReplaceRules atomically swaps in a new rule set. The set is sanitized the
// same way a file load is.
func (e *Engine) ReplaceRules(rs *RuleSet) {
	clean := sanitizeRuleSet(rs)
	e.rulesMu.Lock()
	e.rules = clean
	e.rulesMu.Unlock()
	log.Printf("Choreography: rule set replaced (version %q, %d diversity, %d conflict)",
		clean.Version, len(clean.Diversity), len(clean.Conflict))
}

// Rules returns the active rule set.
func (e *Engine) Rules() *RuleSet {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return e.rules
}

// Evaluate runs every rule against the current metrics and window and
// returns the events of all fired rules. A failure inside one rule is caught
// and logged; the remaining rules still evaluate.
func (e *Engine) Evaluate(in EvalInput) []core.OrchestrationEvent {
	e.rulesMu.RLock()
	rules := e.rules
	e.rulesMu.RUnlock()

	now := e.clock()
	var events []core.OrchestrationEvent

	diversity := make([]DiversityRule, len(rules.Diversity))
	copy(diversity, rules.Diversity)
	sort.SliceStable(diversity, func(i, j int) bool {
		return diversity[i].Priority > diversity[j].Priority
	})

	for _, rule := range diversity {
		if ev, fired := e.evaluateDiversityRule(rule, in, now); fired {
			events = append(events, ev)
		}
	}

	for _, rule := range rules.Conflict {
		if ev, fired := e.evaluateConflictRule(rule, in, now); fired {
			events = append(events, ev)
		}
	}

	return events
}

// StateOf reports the state machine position of one diversity rule given the
// session's firing history: Idle -> Eligible -> Fired -> Cooling -> Idle.
func (e *Engine) StateOf(rule DiversityRule, in EvalInput) RuleState {
	now := e.clock()
	if !e.cooldownElapsed(rule, in.LastFired, now) {
		return StateCooling
	}
	if rule.Trigger.Holds(in.Metrics) {
		return StateEligible
	}
	return StateIdle
}

func (e *Engine) evaluateDiversityRule(rule DiversityRule, in EvalInput, now time.Time) (ev core.OrchestrationEvent, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Choreography: %v", &core.RuleEvaluationError{RuleID: rule.ID, Err: recoveredError(r)})
			fired = false
		}
	}()

	if !rule.Trigger.Holds(in.Metrics) {
		return core.OrchestrationEvent{}, false
	}
	if !e.cooldownElapsed(rule, in.LastFired, now) {
		return core.OrchestrationEvent{}, false
	}

	target := e.resolveTarget(rule.Action, in)
	in.LastFired[rule.ID] = now

	log.Printf("Choreography: diversity rule %s fired (%s -> %s) for session %s",
		rule.ID, rule.Action.Type, target, in.SessionID)

	return core.OrchestrationEvent{
		Type:          rule.Action.Type,
		RuleID:        rule.ID,
		SessionID:     in.SessionID,
		TargetAgentID: target,
		Intensity:     rule.Action.Intensity,
		Parameters:    rule.Action.eventParameters(),
		Timestamp:     now,
	}, true
}

func (e *Engine) cooldownElapsed(rule DiversityRule, lastFired map[string]time.Time, now time.Time) bool {
	last, ok := lastFired[rule.ID]
	if !ok {
		return true
	}
	cooldown := time.Duration(rule.CooldownSeconds * float64(time.Second))
	return now.Sub(last) >= cooldown
}

func (e *Engine) evaluateConflictRule(rule ConflictInjectionRule, in EvalInput, now time.Time) (ev core.OrchestrationEvent, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Choreography: %v", &core.RuleEvaluationError{RuleID: rule.ID, Err: recoveredError(r)})
			fired = false
		}
	}()

	for _, pre := range rule.Preconditions {
		if !pre.Holds(in.Metrics) {
			return core.OrchestrationEvent{}, false
		}
	}

	e.rngMu.Lock()
	sample := e.rng.Float64()
	e.rngMu.Unlock()
	if sample >= rule.Frequency {
		return core.OrchestrationEvent{}, false
	}

	target := e.conflictPartner(in.InitiatorAgentID, rule.ConflictType)

	params := rule.Action.eventParameters()
	params["conflict_type"] = rule.ConflictType
	params["resolution"] = rule.Resolution

	log.Printf("Choreography: conflict rule %s fired (%s vs %s) for session %s",
		rule.ID, in.InitiatorAgentID, target, in.SessionID)

	return core.OrchestrationEvent{
		Type:          core.EventConflictInjection,
		RuleID:        rule.ID,
		SessionID:     in.SessionID,
		TargetAgentID: target,
		Intensity:     rule.Action.Intensity,
		Parameters:    params,
		Timestamp:     now,
	}, true
}

// resolveTarget maps a target strategy to exactly one registered agent id,
// defaulting to the initiating agent when resolution is ambiguous or the
// candidate set is empty.
func (e *Engine) resolveTarget(action Action, in EvalInput) string {
	ids := e.registry.IDs()
	if len(ids) == 0 {
		return in.InitiatorAgentID
	}

	switch action.Target {
	case TargetSpecificAgent:
		if _, ok := e.registry.Get(action.TargetAgentID); ok {
			return action.TargetAgentID
		}
		return in.InitiatorAgentID

	case TargetRandomAgent:
		e.rngMu.Lock()
		defer e.rngMu.Unlock()
		return ids[e.rng.Intn(len(ids))]

	case TargetLeastActive:
		return leastActive(ids, in.Window)

	case TargetMostAgreeable:
		return mostAgreeable(ids, in.Window, in.InitiatorAgentID)

	default:
		return in.InitiatorAgentID
	}
}

// leastActive picks the registered agent with the fewest window appearances;
// ties resolve in registry order.
func leastActive(ids []string, window []core.ResponseRecord) string {
	counts := make(map[string]int, len(ids))
	for _, rec := range window {
		counts[rec.AgentID]++
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if counts[id] < counts[best] {
			best = id
		}
	}
	return best
}

// mostAgreeable picks the agent whose window records carry the lowest rate
// of conflict signals. Agents absent from the window are skipped; if nobody
// appears, resolution is ambiguous and defaults to the initiator.
func mostAgreeable(ids []string, window []core.ResponseRecord, initiator string) string {
	type tally struct {
		total    int
		conflict int
	}
	tallies := make(map[string]*tally)
	for _, rec := range window {
		tl, ok := tallies[rec.AgentID]
		if !ok {
			tl = &tally{}
			tallies[rec.AgentID] = tl
		}
		tl.total++
		if rec.Payload.HasConflictSignal() {
			tl.conflict++
		}
	}
	if len(tallies) == 0 {
		return initiator
	}

	best := ""
	bestRate := math.Inf(1)
	for _, id := range ids {
		tl, ok := tallies[id]
		if !ok {
			continue
		}
		rate := float64(tl.conflict) / float64(tl.total)
		if rate < bestRate {
			best, bestRate = id, rate
		}
	}
	if best == "" {
		return initiator
	}
	return best
}

// conflictPartner is argmax of ConflictScore over all registered profiles
// other than the initiator; ties resolve in registry order.
func (e *Engine) conflictPartner(initiatorID, conflictType string) string {
	initiator, ok := e.registry.Get(initiatorID)
	if !ok {
		return initiatorID
	}

	best := initiatorID
	bestScore := math.Inf(-1)
	for _, id := range e.registry.IDs() {
		if id == initiatorID {
			continue
		}
		other, _ := e.registry.Get(id)
		if score := ConflictScore(initiator, other, conflictType); score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}

// Conflict score kinds.
const (
	ConflictElementalOpposition = "elemental_opposition"
	ConflictTemperamentClash    = "temperament_clash"
	ConflictArchetypeTension    = "archetype_tension"
)

// ConflictScore is a pure, symmetric measure of how strongly two profiles
// conflict under the given conflict type. Unknown types fall back to
// elemental opposition.
func ConflictScore(a, b core.PersonalityProfile, conflictType string) float64 {
	switch conflictType {
	case ConflictTemperamentClash:
		return (absDiff(a.Temperament.Directness, b.Temperament.Directness) +
			absDiff(a.Temperament.Intensity, b.Temperament.Intensity)) / 2

	case ConflictArchetypeTension:
		return archetypeTension(a.ArchetypeResonance, b.ArchetypeResonance)

	default:
		return a.Affinity.Distance(b.Affinity)
	}
}

// archetypeTension sums resonance differences across the union of archetypes,
// treating absence as zero resonance, normalized by the union size.
func archetypeTension(a, b map[string]float64) float64 {
	union := make(map[string]struct{}, len(a)+len(b))
	for name := range a {
		union[name] = struct{}{}
	}
	for name := range b {
		union[name] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	var total float64
	for name := range union {
		total += absDiff(a[name], b[name])
	}
	return total / float64(len(union))
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
