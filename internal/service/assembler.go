package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/podpairer/server/internal/clock"
	"github.com/podpairer/server/internal/database"
	apperrors "github.com/podpairer/server/internal/errors"
	"github.com/podpairer/server/internal/metrics"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/repository"
	"github.com/podpairer/server/internal/scoring"
)

const (
	msgNotEnoughInQueue   = "Not enough players in queue to form a pod"
	msgNotEnoughAvailable = "Not enough available players to form a pod"
)

type AssemblerConfig struct {
	ConfirmWindow time.Duration
	Trials        int
	Weights       scoring.Weights
}

type AssemblyResult struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	PodsCreated int          `json:"podsCreated"`
	Pods        []*model.Pod `json:"pods,omitempty"`
}

// PodAssembler groups waiting participants into pending pods. Passes are
// serialised within the process; the commit guard covers other writers.
type PodAssembler struct {
	tx           database.Transactor
	participants repository.ParticipantRepository
	pods         repository.PodRepository
	history      scoring.HistorySource
	events       PodEventPublisher
	metrics      metrics.Recorder
	clock        clock.Clock
	rng          scoring.RandSource
	cfg          AssemblerConfig
	mu           sync.Mutex
}

func NewPodAssembler(
	tx database.Transactor,
	participants repository.ParticipantRepository,
	pods repository.PodRepository,
	history scoring.HistorySource,
	events PodEventPublisher,
	rec metrics.Recorder,
	clk clock.Clock,
	rng scoring.RandSource,
	cfg AssemblerConfig,
) *PodAssembler {
	return &PodAssembler{
		tx:           tx,
		participants: participants,
		pods:         pods,
		history:      history,
		events:       events,
		metrics:      rec,
		clock:        clk,
		rng:          rng,
		cfg:          cfg,
	}
}

// AssemblePods runs one assembly pass over the current waiting pool.
func (s *PodAssembler) AssemblePods(ctx context.Context) (*AssemblyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiting, err := s.participants.ListWaitingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waiting participants: %w", err)
	}
	if len(waiting) < model.PodSize {
		return &AssemblyResult{Message: msgNotEnoughInQueue}, nil
	}

	active, err := s.pods.ListActiveParticipantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending members: %w", err)
	}
	pool := scoring.Without(waiting, active)
	if len(pool) < model.PodSize {
		return &AssemblyResult{Message: msgNotEnoughAvailable}, nil
	}

	snap, err := scoring.LoadSnapshot(ctx, s.history, pool)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	score := func(candidate []string) scoring.Result {
		return scoring.Score(candidate, snap, s.cfg.Weights, now)
	}

	var created []*model.Pod
	for len(pool) >= model.PodSize {
		group := pool
		if len(pool) > model.PodSize {
			var best scoring.Result
			var ok bool
			group, best, ok = scoring.SelectGroup(pool, model.PodSize, s.cfg.Trials, s.rng, score)
			if !ok {
				break
			}
			log.Debug().
				Strs("participantIds", group).
				Float64("score", best.Total).
				Bool("vetoed", best.Vetoed).
				Msg("selected pod candidate")
		}

		pod, err := s.commit(ctx, group, now)
		if apperrors.HasCode(err, apperrors.ErrCodeNotIncluded) {
			s.metrics.RecordAssemblyConflict()
			log.Warn().Err(err).Strs("participantIds", group).Msg("pod candidate no longer available, skipping")
			pool = scoring.Without(pool, group)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("commit pod: %w", err)
		}

		created = append(created, pod)
		pool = scoring.Without(pool, group)

		s.metrics.RecordPodsCreated(1)
		log.Info().
			Str("podId", pod.ID).
			Strs("participantIds", pod.MemberIDs()).
			Time("deadline", pod.ConfirmationDeadline).
			Msg("pod created")
		publishPodEvent(ctx, s.events, pod, model.PodEvent{
			Type:   model.PodEventAssigned,
			PodID:  pod.ID,
			Status: pod.Status,
			At:     now,
			Pod:    pod,
		})
	}

	return &AssemblyResult{
		Success:     true,
		Message:     fmt.Sprintf("Created %d pods", len(created)),
		PodsCreated: len(created),
		Pods:        created,
	}, nil
}

// commit inserts the pod only if every member is still waiting and not
// already in a pending pod; otherwise it reports NOT_INCLUDED.
func (s *PodAssembler) commit(ctx context.Context, memberIDs []string, now time.Time) (*model.Pod, error) {
	var pod *model.Pod
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.participants.WithTx(tx).LockForUpdate(ctx, memberIDs)
		if err != nil {
			return fmt.Errorf("lock participants: %w", err)
		}
		if missing := notWaiting(memberIDs, locked); len(missing) > 0 {
			return apperrors.NotIncluded(missing)
		}

		created, err := s.pods.WithTx(tx).Create(ctx, model.CreatePodParams{
			ID:                   uuid.NewString(),
			MemberIDs:            memberIDs,
			ConfirmationDeadline: now.Add(s.cfg.ConfirmWindow),
			CreatedAt:            now,
		})
		if repository.IsUniqueViolation(err) {
			return apperrors.NotIncluded(memberIDs).WithCause(err)
		}
		if err != nil {
			return fmt.Errorf("create pod: %w", err)
		}
		pod = created
		return nil
	})
	return pod, err
}

func notWaiting(ids []string, locked []model.Participant) []string {
	waiting := make(map[string]bool, len(locked))
	for _, p := range locked {
		waiting[p.ID] = p.Waiting
	}
	var missing []string
	for _, id := range ids {
		if !waiting[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// historyReader adapts the match and rating repositories to the scorer's
// history source.
type historyReader struct {
	repository.MatchRepository
	ratings repository.RatingRepository
}

func NewHistorySource(matches repository.MatchRepository, ratings repository.RatingRepository) scoring.HistorySource {
	return &historyReader{MatchRepository: matches, ratings: ratings}
}

func (h *historyReader) FindLatestRatingsAmong(ctx context.Context, participantIDs []string) ([]model.Rating, error) {
	return h.ratings.FindLatestRatingsAmong(ctx, participantIDs)
}
