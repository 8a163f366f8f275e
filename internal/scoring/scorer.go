// Package scoring ranks candidate pod groupings by pairing history and reputation.
//
// Score is pure: for a fixed History snapshot it always returns the same
// Result. Randomness lives only in SelectGroup's candidate sampling.
package scoring

import (
	"math"
	"time"
)

// NeutralRating contributes nothing to the reputation term.
const NeutralRating = 3

// Floor is the total reported for a vetoed candidate set.
const Floor = 0.0

// Weights tunes the scorer. Both penalties default to zero.
type Weights struct {
	RecentPairPenalty float64
	RecentWindow      time.Duration
	MatchCountPenalty float64
	NeverRatedBonus   float64
	// VetoThreshold is the number of candidates that may share recent pods
	// before the set is vetoed. A set is vetoed when the overlap exceeds it.
	VetoThreshold int
}

func DefaultWeights() Weights {
	return Weights{
		RecentPairPenalty: 0,
		RecentWindow:      24 * time.Hour,
		MatchCountPenalty: 0,
		NeverRatedBonus:   2,
		VetoThreshold:     3,
	}
}

// History is the read-only pairing history the scorer consults.
type History interface {
	PlayedTogetherSince(a, b string, since time.Time) bool
	MatchCount(a, b string) int
	LatestRating(rater, rated string) (int, bool)
	LastPodMembers(participantID string) []string
}

// Result is a candidate's score. A vetoed result carries Total == Floor, and
// Vetoed separates it from a legitimately zero pairwise sum.
type Result struct {
	Total  float64
	Vetoed bool
}

// Baseline ranks below every real result.
func Baseline() Result {
	return Result{Total: math.Inf(-1), Vetoed: true}
}

// Beats reports whether r should replace o as the best candidate. Any
// non-vetoed result outranks any vetoed one; otherwise the higher total wins.
func (r Result) Beats(o Result) bool {
	if r.Vetoed != o.Vetoed {
		return !r.Vetoed
	}
	return r.Total > o.Total
}

// Score evaluates a candidate set of distinct participant ids.
func Score(candidate []string, h History, w Weights, now time.Time) Result {
	if RecencyOverlap(candidate, h) > w.VetoThreshold {
		return Result{Total: Floor, Vetoed: true}
	}

	var total float64
	for i := 0; i < len(candidate); i++ {
		for j := i + 1; j < len(candidate); j++ {
			total += PairScore(candidate[i], candidate[j], h, w, now)
		}
	}
	return Result{Total: total}
}

// PairScore is the sum of all pairwise terms for the unordered pair (a, b).
func PairScore(a, b string, h History, w Weights, now time.Time) float64 {
	var score float64

	if h.PlayedTogetherSince(a, b, now.Add(-w.RecentWindow)) {
		score -= w.RecentPairPenalty
	}

	score += reputation(a, b, h, w)
	score += reputation(b, a, h, w)

	score -= w.MatchCountPenalty * float64(h.MatchCount(a, b))

	return score
}

func reputation(rater, rated string, h History, w Weights) float64 {
	rating, ok := h.LatestRating(rater, rated)
	if !ok {
		return w.NeverRatedBonus
	}
	return float64((rating - NeutralRating) * 2)
}

// RecencyOverlap counts the candidates that appear in more than one of the
// candidates' most recent pods. Each candidate's own last pod is inspected,
// so a pod shared by several candidates is counted once per candidate.
func RecencyOverlap(candidate []string, h History) int {
	appearances := make(map[string]int)
	for _, id := range candidate {
		for _, member := range h.LastPodMembers(id) {
			appearances[member]++
		}
	}

	overlap := 0
	for _, id := range candidate {
		if appearances[id] > 1 {
			overlap++
		}
	}
	return overlap
}
