package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soullab/oracle-choreography/core"
)

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
}

func validProfileJSON(id string) string {
	return `{
		"id": "` + id + `",
		"name": "The ` + id + ` Oracle",
		"version": "1.0.0",
		"element": "` + id + `",
		"affinity": {"fire": 0.6, "water": 0.1, "earth": 0.1, "air": 0.1, "aether": 0.1},
		"temperament": {"directness": 0.8, "intensity": 0.9, "warmth": 0.5, "groundedness": 0.3},
		"archetype_resonance": {"Phoenix": 0.9, "Warrior": 0.7},
		"keywords": ["passion", "transform", "ignite"]
	}`
}

func TestLoad_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "fire.json", validProfileJSON("fire"))
	writeProfile(t, dir, "broken.json", `{not json`)
	writeProfile(t, dir, "noid.json", `{"name": "Nameless", "version": "1.0.0"}`)
	writeProfile(t, dir, "water.json", validProfileJSON("water"))
	writeProfile(t, dir, "notes.txt", "ignored")

	r, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("loaded %d profiles, want 2", r.Len())
	}
	if _, ok := r.Get("fire"); !ok {
		t.Error("fire profile should be registered")
	}
	if _, ok := r.Get("water"); !ok {
		t.Error("water profile should be registered")
	}
}

func TestLoad_FailsWhenNothingValid(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "broken.json", `{not json`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error when no valid profiles load")
	}
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error should be a ValidationError, got %T", err)
	}
}

func TestLoad_OrderFollowsFileNames(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "b_water.json", validProfileJSON("water"))
	writeProfile(t, dir, "a_fire.json", validProfileJSON("fire"))

	r, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ids := r.IDs()
	if ids[0] != "fire" || ids[1] != "water" {
		t.Errorf("IDs = %v, want [fire water]", ids)
	}
}

func TestNew_RejectsMissingFields(t *testing.T) {
	cases := []struct {
		name    string
		profile core.PersonalityProfile
	}{
		{"missing id", core.PersonalityProfile{Name: "X", Version: "1"}},
		{"missing name", core.PersonalityProfile{ID: "x", Version: "1"}},
		{"missing version", core.PersonalityProfile{ID: "x", Name: "X"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.profile); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUpdateProfile_AtomicPartialUpdate(t *testing.T) {
	r, err := New(core.PersonalityProfile{ID: "fire", Name: "Fire", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	name := "The Eternal Flame"
	keywords := []string{"ignite", "burn"}
	if err := r.UpdateProfile("fire", core.ProfilePatch{Name: &name, Keywords: &keywords}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	p, _ := r.Get("fire")
	if p.Name != name {
		t.Errorf("Name = %q, want %q", p.Name, name)
	}
	if len(p.Keywords) != 2 {
		t.Errorf("Keywords = %v, want 2 entries", p.Keywords)
	}
	if p.Version != "1.0.0" {
		t.Errorf("Version changed unexpectedly to %q", p.Version)
	}
}

func TestUpdateProfile_RejectsInvalidResult(t *testing.T) {
	r, err := New(core.PersonalityProfile{ID: "fire", Name: "Fire", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	empty := ""
	if err := r.UpdateProfile("fire", core.ProfilePatch{Name: &empty}); err == nil {
		t.Fatal("expected validation error for empty name")
	}

	p, _ := r.Get("fire")
	if p.Name != "Fire" {
		t.Errorf("failed update must not partially apply, Name = %q", p.Name)
	}
}
