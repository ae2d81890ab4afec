// Package metrics derives rolling conversation statistics from the response
// history. Recomputation is a pure function of the trailing window: the same
// window always yields identical metrics.
package metrics

import (
	"strings"

	"github.com/soullab/oracle-choreography/core"
)

// DefaultWindowSize is the trailing slice of history the aggregator reads.
const DefaultWindowSize = 5

// SimilarityFunc scores two response payloads in [0,1].
type SimilarityFunc func(a, b core.ResponsePayload) float64

// Aggregator computes DiversityMetrics over a trailing window.
type Aggregator struct {
	windowSize int
	similarity SimilarityFunc
}

// NewAggregator creates an aggregator. A non-positive windowSize falls back
// to DefaultWindowSize; a nil similarity falls back to TokenOverlap.
func NewAggregator(windowSize int, similarity SimilarityFunc) *Aggregator {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if similarity == nil {
		similarity = TokenOverlap
	}
	return &Aggregator{windowSize: windowSize, similarity: similarity}
}

// WindowSize returns the configured trailing window size.
func (a *Aggregator) WindowSize() int {
	return a.windowSize
}

// Recompute derives metrics from the trailing window of history. A window
// smaller than configured uses whatever is available; no neutral records are
// fabricated. The history slice is never mutated. LastDiversityAction is
// owned by the session state, not derived here, and is left zero.
func (a *Aggregator) Recompute(history []core.ResponseRecord) core.DiversityMetrics {
	window := history
	if len(window) > a.windowSize {
		window = window[len(window)-a.windowSize:]
	}

	return core.DiversityMetrics{
		AgreementScore: a.agreementScore(window),
		DiversityIndex: diversityIndex(window, a.windowSize),
		ConflictLevel:  conflictLevel(window),
	}
}

// agreementScore averages pairwise similarity between each consecutive pair
// in the window. With fewer than 2 records there is nothing to compare and
// the score is the neutral 0.5.
func (a *Aggregator) agreementScore(window []core.ResponseRecord) float64 {
	if len(window) < 2 {
		return 0.5
	}
	var total float64
	for i := 1; i < len(window); i++ {
		total += clamp01(a.similarity(window[i-1].Payload, window[i].Payload))
	}
	return total / float64(len(window)-1)
}

// diversityIndex is the number of distinct agents in the window divided by
// the configured window size.
func diversityIndex(window []core.ResponseRecord, windowSize int) float64 {
	if len(window) == 0 {
		return 0
	}
	distinct := make(map[string]struct{}, len(window))
	for _, rec := range window {
		distinct[rec.AgentID] = struct{}{}
	}
	size := windowSize
	if len(window) < size {
		size = len(window)
	}
	return float64(len(distinct)) / float64(size)
}

// conflictLevel is the fraction of records carrying resistance or
// contradiction signals.
func conflictLevel(window []core.ResponseRecord) float64 {
	if len(window) == 0 {
		return 0
	}
	var flagged int
	for _, rec := range window {
		if rec.Payload.HasConflictSignal() {
			flagged++
		}
	}
	return float64(flagged) / float64(len(window))
}

// TokenOverlap is the default similarity: Jaccard overlap of lowercased
// word sets. Two empty texts are fully similar; one empty text is fully
// dissimilar to a non-empty one.
func TokenOverlap(a, b core.ResponsePayload) float64 {
	as := tokenSet(a.Text)
	bs := tokenSet(b.Text)
	if len(as) == 0 && len(bs) == 0 {
		return 1
	}
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	var intersection int
	for tok := range as {
		if _, ok := bs[tok]; ok {
			intersection++
		}
	}
	union := len(as) + len(bs) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(tok, ".,!?;:\"'")] = struct{}{}
	}
	delete(set, "")
	return set
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
