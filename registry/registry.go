package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/soullab/oracle-choreography/core"
)

// Registry holds the loaded personality profiles. Iteration order is the
// load order (sorted file names), which downstream tie-breaking relies on.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]core.PersonalityProfile
	order    []string
}

// Load reads every *.json file in dir as a PersonalityProfile. Individual
// malformed files are logged and skipped; Load fails only when the directory
// is unreadable or no valid profile remains.
func Load(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profiles directory: %w", err)
	}

	r := &Registry{profiles: make(map[string]core.PersonalityProfile)}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Registry: skipping %s: %v", name, err)
			continue
		}

		var profile core.PersonalityProfile
		if err := json.Unmarshal(data, &profile); err != nil {
			log.Printf("Registry: skipping %s: %v", name, &core.ValidationError{Source: name, Reason: err.Error()})
			continue
		}

		if err := validate(name, profile); err != nil {
			log.Printf("Registry: skipping %s: %v", name, err)
			continue
		}

		if _, dup := r.profiles[profile.ID]; dup {
			log.Printf("Registry: skipping %s: %v", name, &core.ValidationError{Source: name, Reason: "duplicate profile id " + profile.ID})
			continue
		}

		r.profiles[profile.ID] = profile
		r.order = append(r.order, profile.ID)
	}

	if len(r.profiles) == 0 {
		return nil, &core.ValidationError{Source: dir, Reason: "no valid personality profiles loaded"}
	}

	log.Printf("Registry: loaded %d personality profiles from %s", len(r.profiles), dir)
	return r, nil
}

// New builds a registry directly from profiles, validating each. Intended
// for tests and programmatic wiring.
func New(profiles ...core.PersonalityProfile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]core.PersonalityProfile)}
	for _, p := range profiles {
		if err := validate(p.ID, p); err != nil {
			return nil, err
		}
		if _, dup := r.profiles[p.ID]; dup {
			return nil, &core.ValidationError{Source: p.ID, Reason: "duplicate profile id"}
		}
		r.profiles[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	if len(r.profiles) == 0 {
		return nil, &core.ValidationError{Source: "registry", Reason: "no valid personality profiles loaded"}
	}
	return r, nil
}

func validate(source string, p core.PersonalityProfile) error {
	switch {
	case p.ID == "":
		return &core.ValidationError{Source: source, Reason: "missing id"}
	case p.Name == "":
		return &core.ValidationError{Source: source, Reason: "missing name"}
	case p.Version == "":
		return &core.ValidationError{Source: source, Reason: "missing version"}
	}
	return nil
}

// Get returns the profile for id, if registered.
func (r *Registry) Get(id string) (core.PersonalityProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// IDs returns the registered profile ids in registry order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// All returns the registered profiles in registry order.
func (r *Registry) All() []core.PersonalityProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.PersonalityProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id])
	}
	return out
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// UpdateProfile applies a partial update to one profile. The replacement is
// atomic: readers see either the old or the new profile, never a mix.
func (r *Registry) UpdateProfile(id string, patch core.ProfilePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("profile %s not registered", id)
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Version != nil {
		p.Version = *patch.Version
	}
	if patch.Affinity != nil {
		p.Affinity = *patch.Affinity
	}
	if patch.Temperament != nil {
		p.Temperament = *patch.Temperament
	}
	if patch.ArchetypeResonance != nil {
		p.ArchetypeResonance = *patch.ArchetypeResonance
	}
	if patch.Keywords != nil {
		p.Keywords = *patch.Keywords
	}
	if patch.SystemPrompt != nil {
		p.SystemPrompt = *patch.SystemPrompt
	}

	if err := validate(id, p); err != nil {
		return err
	}

	r.profiles[id] = p
	return nil
}
