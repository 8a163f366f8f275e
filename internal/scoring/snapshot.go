package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/podpairer/server/internal/model"
)

type pairKey struct {
	a, b string
}

func unordered(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Snapshot is an in-memory History taken once per assembly pass.
type Snapshot struct {
	matchCounts map[pairKey]int
	lastPlayed  map[pairKey]time.Time
	ratings     map[pairKey]rating
	lastPods    map[string][]string
}

type rating struct {
	value int
	at    time.Time
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		matchCounts: make(map[pairKey]int),
		lastPlayed:  make(map[pairKey]time.Time),
		ratings:     make(map[pairKey]rating),
		lastPods:    make(map[string][]string),
	}
}

// AddMatch records a confirmed match between memberIDs at the given time.
func (s *Snapshot) AddMatch(memberIDs []string, at time.Time) {
	for i := 0; i < len(memberIDs); i++ {
		for j := i + 1; j < len(memberIDs); j++ {
			key := unordered(memberIDs[i], memberIDs[j])
			s.matchCounts[key]++
			if at.After(s.lastPlayed[key]) {
				s.lastPlayed[key] = at
			}
		}
	}
}

// AddRating records a directional rating; the most recent one per pair wins.
func (s *Snapshot) AddRating(raterID, ratedID string, value int, at time.Time) {
	key := pairKey{raterID, ratedID}
	if existing, ok := s.ratings[key]; ok && existing.at.After(at) {
		return
	}
	s.ratings[key] = rating{value: value, at: at}
}

func (s *Snapshot) SetLastPod(participantID string, memberIDs []string) {
	s.lastPods[participantID] = memberIDs
}

func (s *Snapshot) PlayedTogetherSince(a, b string, since time.Time) bool {
	at, ok := s.lastPlayed[unordered(a, b)]
	return ok && !at.Before(since)
}

func (s *Snapshot) MatchCount(a, b string) int {
	return s.matchCounts[unordered(a, b)]
}

func (s *Snapshot) LatestRating(rater, rated string) (int, bool) {
	r, ok := s.ratings[pairKey{rater, rated}]
	return r.value, ok
}

func (s *Snapshot) LastPodMembers(participantID string) []string {
	return s.lastPods[participantID]
}

// HistorySource reads the pairing history needed for a pool of participants.
type HistorySource interface {
	FindMatchesAmong(ctx context.Context, participantIDs []string) ([]model.Match, error)
	FindLatestRatingsAmong(ctx context.Context, participantIDs []string) ([]model.Rating, error)
	FindLastPodMembers(ctx context.Context, participantIDs []string) (map[string][]string, error)
}

// LoadSnapshot reads everything the scorer needs about participantIDs in
// three queries.
func LoadSnapshot(ctx context.Context, src HistorySource, participantIDs []string) (*Snapshot, error) {
	snap := NewSnapshot()

	matches, err := src.FindMatchesAmong(ctx, participantIDs)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	for _, m := range matches {
		snap.AddMatch(m.MemberIDs, m.CreatedAt)
	}

	ratings, err := src.FindLatestRatingsAmong(ctx, participantIDs)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	for _, r := range ratings {
		snap.AddRating(r.RaterID, r.RatedID, r.Value, r.UpdatedAt)
	}

	lastPods, err := src.FindLastPodMembers(ctx, participantIDs)
	if err != nil {
		return nil, fmt.Errorf("load last pods: %w", err)
	}
	for id, members := range lastPods {
		snap.SetLastPod(id, members)
	}

	return snap, nil
}
