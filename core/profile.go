package core

// ElementalAffinity weights a personality across the five elements. The
// weights are relative; loaders normalize them but consumers must not assume
// they sum to exactly 1.0.
type ElementalAffinity struct {
	Fire   float64 `json:"fire"`
	Water  float64 `json:"water"`
	Earth  float64 `json:"earth"`
	Air    float64 `json:"air"`
	Aether float64 `json:"aether"`
}

// Vector returns the affinity as a fixed-order slice (fire, water, earth,
// air, aether) for distance computations.
func (a ElementalAffinity) Vector() [5]float64 {
	return [5]float64{a.Fire, a.Water, a.Earth, a.Air, a.Aether}
}

// Sum returns the total weight across all elements.
func (a ElementalAffinity) Sum() float64 {
	return a.Fire + a.Water + a.Earth + a.Air + a.Aether
}

// Distance is the L1 distance between two affinity vectors, halved so that
// two unit-sum vectors are at most 1.0 apart.
func (a ElementalAffinity) Distance(b ElementalAffinity) float64 {
	av, bv := a.Vector(), b.Vector()
	var d float64
	for i := range av {
		diff := av[i] - bv[i]
		if diff < 0 {
			diff = -diff
		}
		d += diff
	}
	return d / 2
}

// Temperament describes how a personality delivers its responses.
// All fields are in [0,1].
type Temperament struct {
	Directness   float64 `json:"directness"`
	Intensity    float64 `json:"intensity"`
	Warmth       float64 `json:"warmth"`
	Groundedness float64 `json:"groundedness"`
}

// PersonalityProfile is an immutable description of one response-generating
// personality. Profiles are loaded once at startup; the registry replaces
// fields atomically on explicit update, never in place.
type PersonalityProfile struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Version            string             `json:"version"`
	Element            string             `json:"element"`
	Affinity           ElementalAffinity  `json:"affinity"`
	Temperament        Temperament        `json:"temperament"`
	ArchetypeResonance map[string]float64 `json:"archetype_resonance"`
	Keywords           []string           `json:"keywords"`
	SystemPrompt       string             `json:"system_prompt,omitempty"`
}

// ProfilePatch carries a partial profile update. Nil fields are left
// untouched; set fields replace the existing value wholesale.
type ProfilePatch struct {
	Name               *string             `json:"name,omitempty"`
	Version            *string             `json:"version,omitempty"`
	Affinity           *ElementalAffinity  `json:"affinity,omitempty"`
	Temperament        *Temperament        `json:"temperament,omitempty"`
	ArchetypeResonance *map[string]float64 `json:"archetype_resonance,omitempty"`
	Keywords           *[]string           `json:"keywords,omitempty"`
	SystemPrompt       *string             `json:"system_prompt,omitempty"`
}
