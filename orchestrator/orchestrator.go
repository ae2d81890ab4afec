// Package orchestrator is the externally visible entry point: it accepts a
// turn, drives selection, generation, history, metrics, and choreography in
// a fixed order, and returns the chosen response plus orchestration metadata.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soullab/oracle-choreography/agent"
	"github.com/soullab/oracle-choreography/choreography"
	"github.com/soullab/oracle-choreography/core"
	"github.com/soullab/oracle-choreography/history"
	"github.com/soullab/oracle-choreography/metrics"
	"github.com/soullab/oracle-choreography/registry"
	"github.com/soullab/oracle-choreography/selection"
)

// Archive persists completed turns. Implementations live in the storage
// package; persistence failures degrade to logging, never to a failed turn.
type Archive interface {
	SaveTurn(sessionKey string, seq int, record core.ResponseRecord) error
	SaveSession(sessionKey, userID string) error
}

// Result is what a completed turn hands back to the caller.
type Result struct {
	TurnID                string                      `json:"turn_id"`
	SelectedAgent         string                      `json:"selected_agent"`
	Response              core.ResponsePayload        `json:"response"`
	AlternativeCandidates []selection.ScoredCandidate `json:"alternative_candidates"`
	Metrics               core.DiversityMetrics       `json:"diversity_metrics"`
	FiredRules            []string                    `json:"fired_rules"`
	Events                []core.OrchestrationEvent   `json:"events,omitempty"`
}

// Options tune an orchestrator instance.
type Options struct {
	HistoryCapacity int
	Archive         Archive          // optional
	Events          core.EventSink   // optional
	Clock           func() time.Time // defaults to time.Now
}

// Orchestrator coordinates one turn at a time per session. Distinct sessions
// proceed concurrently; within a session the whole pipeline runs under the
// session lock, so history append order matches turn completion order.
type Orchestrator struct {
	registry   *registry.Registry
	agents     map[string]*agent.Instance
	selector   *selection.Engine
	aggregator *metrics.Aggregator
	rules      *choreography.Engine
	archive    Archive
	events     core.EventSink
	clock      func() time.Time
	historyCap int

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// sessionState is the only state shared across turns of one session. It is
// mutated under its own lock, one append+recompute pair per turn.
type sessionState struct {
	mu                  sync.Mutex
	history             *history.Ring
	metrics             core.DiversityMetrics
	lastFired           map[string]time.Time
	lastDiversityAction time.Time
	seq                 int
}

// New constructs an orchestrator with injected collaborators. Every
// registered profile gets one agent instance backed by gen.
func New(reg *registry.Registry, gen agent.Generator, selector *selection.Engine, aggregator *metrics.Aggregator, rules *choreography.Engine, opts Options) (*Orchestrator, error) {
	if reg.Len() == 0 {
		return nil, fmt.Errorf("orchestrator requires at least one registered profile")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	agents := make(map[string]*agent.Instance, reg.Len())
	for _, id := range reg.IDs() {
		inst, err := agent.NewInstance(reg, id, gen)
		if err != nil {
			return nil, err
		}
		agents[id] = inst
	}

	return &Orchestrator{
		registry:   reg,
		agents:     agents,
		selector:   selector,
		aggregator: aggregator,
		rules:      rules,
		archive:    opts.Archive,
		events:     opts.Events,
		clock:      opts.Clock,
		historyCap: opts.HistoryCapacity,
		sessions:   make(map[string]*sessionState),
	}, nil
}

// HandleTurn runs the full per-turn pipeline: select agent, generate,
// append history, recompute metrics, evaluate rules, emit events, return
// response with metadata. No step is skipped or reordered.
func (o *Orchestrator) HandleTurn(ctx context.Context, input string, tctx core.TurnContext) (*Result, error) {
	sess := o.session(tctx)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	window := sess.history.Tail(o.aggregator.WindowSize())
	candidates := o.registry.IDs()

	// 1. Selection.
	selected, err := o.selector.SelectAgent(input, tctx, candidates, window)
	if err != nil {
		return nil, err
	}
	ranked := o.selector.Rank(input, tctx, candidates, window)

	// 2. Generation. Respond never fails the turn; worst case is a fallback
	// payload, so steps 3-7 always run.
	inst := o.agents[selected]
	inst.InitializeSession(tctx.UserID, tctx.SessionID)
	payload := inst.Respond(ctx, input, tctx)

	// 3. History append.
	record := core.ResponseRecord{
		ID:        uuid.New().String(),
		AgentID:   selected,
		UserID:    tctx.UserID,
		Payload:   payload,
		Timestamp: o.clock(),
	}
	sess.history.Append(record)
	sess.seq++

	// 4. Metrics recompute.
	m := o.aggregator.Recompute(sess.history.All())
	m.LastDiversityAction = sess.lastDiversityAction
	sess.metrics = m

	// 5. Rule evaluation.
	events := o.rules.Evaluate(choreography.EvalInput{
		SessionID:        tctx.SessionID,
		InitiatorAgentID: selected,
		Metrics:          sess.metrics,
		Window:           sess.history.Tail(o.aggregator.WindowSize()),
		LastFired:        sess.lastFired,
	})
	for _, ev := range events {
		if ev.Type != core.EventConflictInjection {
			sess.lastDiversityAction = ev.Timestamp
			sess.metrics.LastDiversityAction = ev.Timestamp
		}
	}
	o.emit(events)

	// 6. Alternative-candidate ranking for metadata.
	alternatives := alternativeCandidates(ranked, selected, 3)

	// 7. Persist and return.
	o.persist(tctx, sess.seq, record)

	fired := make([]string, 0, len(events))
	for _, ev := range events {
		fired = append(fired, o.describeRule(ev))
	}

	return &Result{
		TurnID:                record.ID,
		SelectedAgent:         selected,
		Response:              payload,
		AlternativeCandidates: alternatives,
		Metrics:               sess.metrics,
		FiredRules:            fired,
		Events:                events,
	}, nil
}

// SessionMetrics returns the latest metrics snapshot for a session key, if
// the session has seen any turns.
func (o *Orchestrator) SessionMetrics(tctx core.TurnContext) (core.DiversityMetrics, bool) {
	o.mu.Lock()
	sess, ok := o.sessions[tctx.SessionKey()]
	o.mu.Unlock()
	if !ok {
		return core.DiversityMetrics{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.metrics, true
}

// SessionHistory returns a chronological copy of a session's retained
// records.
func (o *Orchestrator) SessionHistory(tctx core.TurnContext) []core.ResponseRecord {
	o.mu.Lock()
	sess, ok := o.sessions[tctx.SessionKey()]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.history.All()
}

// RuleEngine exposes the choreography engine for rule-set replacement.
func (o *Orchestrator) RuleEngine() *choreography.Engine {
	return o.rules
}

func (o *Orchestrator) session(tctx core.TurnContext) *sessionState {
	key := tctx.SessionKey()
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[key]
	if !ok {
		sess = &sessionState{
			history:   history.NewRing(o.historyCap),
			lastFired: make(map[string]time.Time),
		}
		o.sessions[key] = sess
		if o.archive != nil {
			if err := o.archive.SaveSession(key, tctx.UserID); err != nil {
				log.Printf("Orchestrator: failed to persist session %s: %v", key, err)
			}
		}
	}
	return sess
}

// emit forwards events to the sink. Sinks are fire-and-forget notifications;
// the pipeline never waits on their side effects.
func (o *Orchestrator) emit(events []core.OrchestrationEvent) {
	if o.events == nil {
		return
	}
	for _, ev := range events {
		o.events.Emit(ev)
	}
}

func (o *Orchestrator) persist(tctx core.TurnContext, seq int, record core.ResponseRecord) {
	if o.archive == nil {
		return
	}
	if err := o.archive.SaveTurn(tctx.SessionKey(), seq, record); err != nil {
		log.Printf("Orchestrator: failed to archive turn %s: %v", record.ID, err)
	}
}

func (o *Orchestrator) describeRule(ev core.OrchestrationEvent) string {
	rules := o.rules.Rules()
	for _, rule := range rules.Diversity {
		if rule.ID == ev.RuleID && rule.Description != "" {
			return fmt.Sprintf("%s: %s", rule.ID, rule.Description)
		}
	}
	for _, rule := range rules.Conflict {
		if rule.ID == ev.RuleID && rule.Description != "" {
			return fmt.Sprintf("%s: %s", rule.ID, rule.Description)
		}
	}
	return fmt.Sprintf("%s (%s targeting %s)", ev.RuleID, ev.Type, ev.TargetAgentID)
}

// alternativeCandidates returns the top n non-selected candidates by score,
// descending; Rank already breaks score ties by id.
func alternativeCandidates(ranked []selection.ScoredCandidate, selected string, n int) []selection.ScoredCandidate {
	out := make([]selection.ScoredCandidate, 0, n)
	for _, sc := range ranked {
		if sc.AgentID == selected {
			continue
		}
		out = append(out, sc)
		if len(out) == n {
			break
		}
	}
	return out
}
