// Package agent wraps each registered personality in a stateful instance
// that owns session initialization and delegates text generation to an
// external collaborator.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/soullab/oracle-choreography/core"
	"github.com/soullab/oracle-choreography/registry"
)

// Generator is the external response-generation collaborator. The
// orchestrator treats it as a black box.
type Generator interface {
	Generate(ctx context.Context, profile core.PersonalityProfile, input string, tctx core.TurnContext) (core.ResponsePayload, error)
}

// Instance is the stateful wrapper around one personality profile. Created
// at startup, destroyed at shutdown; no mutable state is shared across
// instances.
type Instance struct {
	profileID string
	registry  *registry.Registry
	generator Generator

	mu       sync.Mutex
	sessions map[string]struct{}
}

// NewInstance creates an agent instance for a registered profile.
func NewInstance(reg *registry.Registry, profileID string, gen Generator) (*Instance, error) {
	if _, ok := reg.Get(profileID); !ok {
		return nil, fmt.Errorf("profile %s not registered", profileID)
	}
	return &Instance{
		profileID: profileID,
		registry:  reg,
		generator: gen,
		sessions:  make(map[string]struct{}),
	}, nil
}

// ProfileID returns the id of the personality this instance wraps.
func (a *Instance) ProfileID() string {
	return a.profileID
}

// Profile returns the current profile from the registry, so atomic profile
// updates are visible on the next turn.
func (a *Instance) Profile() core.PersonalityProfile {
	p, _ := a.registry.Get(a.profileID)
	return p
}

// InitializeSession marks a (user, session) pair as initialized. Idempotent:
// repeat calls for the same pair are no-ops.
func (a *Instance) InitializeSession(userID, sessionID string) {
	key := userID + "|" + sessionID
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[key]; ok {
		return
	}
	a.sessions[key] = struct{}{}
	log.Printf("Agent %s: initialized session %s", a.profileID, key)
}

// SessionInitialized reports whether a (user, session) pair has been set up.
func (a *Instance) SessionInitialized(userID, sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions[userID+"|"+sessionID]
	return ok
}

// Respond produces a payload for the turn. Generation failures, including
// context cancellation, are absorbed into a fallback payload so the
// orchestration pipeline always completes the turn.
func (a *Instance) Respond(ctx context.Context, input string, tctx core.TurnContext) core.ResponsePayload {
	profile := a.Profile()

	payload, err := a.generator.Generate(ctx, profile, input, tctx)
	if err != nil {
		failure := &core.GenerationFailure{AgentID: a.profileID, Err: err}
		log.Printf("Agent %s: %v, returning fallback", a.profileID, failure)
		return fallbackPayload(profile, failure)
	}
	return payload
}

func fallbackPayload(profile core.PersonalityProfile, failure *core.GenerationFailure) core.ResponsePayload {
	name := profile.Name
	if name == "" {
		name = "The oracle"
	}
	return core.ResponsePayload{
		Text:     fmt.Sprintf("%s pauses to gather itself. Sit with what you have shared, and ask again in a moment.", name),
		Fallback: true,
		Error:    failure.Error(),
	}
}
