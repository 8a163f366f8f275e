package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/podpairer/server/internal/clock"
	"github.com/podpairer/server/internal/database"
	apperrors "github.com/podpairer/server/internal/errors"
	"github.com/podpairer/server/internal/metrics"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/repository"
)

type SweepResult struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	PodsRemoved int      `json:"podsUpdated"`
	PodIDs      []string `json:"podIds,omitempty"`
}

// TimeoutReaper removes pending pods whose confirmation deadline passed and
// ejects their members from the queue.
type TimeoutReaper struct {
	tx           database.Transactor
	participants repository.ParticipantRepository
	pods         repository.PodRepository
	events       PodEventPublisher
	metrics      metrics.Recorder
	clock        clock.Clock
}

func NewTimeoutReaper(
	tx database.Transactor,
	participants repository.ParticipantRepository,
	pods repository.PodRepository,
	events PodEventPublisher,
	rec metrics.Recorder,
	clk clock.Clock,
) *TimeoutReaper {
	return &TimeoutReaper{
		tx:           tx,
		participants: participants,
		pods:         pods,
		events:       events,
		metrics:      rec,
		clock:        clk,
	}
}

func (s *TimeoutReaper) SweepTimeouts(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now()

	expired, err := s.pods.ListExpiredPendingIDs(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expired pods: %w", err)
	}
	if len(expired) == 0 {
		return &SweepResult{Success: true, Message: "No pods have timed out"}, nil
	}

	result := &SweepResult{Success: true}
	for _, podID := range expired {
		pod, err := s.expire(ctx, podID, now)
		if apperrors.HasCode(err, apperrors.ErrCodeAlreadyResolved) {
			log.Debug().Str("podId", podID).Msg("pod resolved before timeout, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("expire pod %s: %w", podID, err)
		}

		result.PodsRemoved++
		result.PodIDs = append(result.PodIDs, podID)

		s.metrics.RecordPodResolved(model.PodStatusTimedOut)
		log.Info().
			Str("podId", podID).
			Strs("participantIds", pod.MemberIDs()).
			Msg("pod timed out, members removed from queue")
		publishPodEvent(ctx, s.events, pod, model.PodEvent{
			Type:   model.PodEventTimedOut,
			PodID:  podID,
			Status: model.PodStatusTimedOut,
			At:     now,
		})
	}

	result.Message = fmt.Sprintf("Removed %d timed out pods", result.PodsRemoved)
	return result, nil
}

// expire deletes one pod if it is still pending and past its deadline once
// its row is locked.
func (s *TimeoutReaper) expire(ctx context.Context, podID string, now time.Time) (*model.Pod, error) {
	var pod *model.Pod
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		pods := s.pods.WithTx(tx)

		locked, err := pods.FindByIDForUpdate(ctx, podID)
		if err != nil {
			return fmt.Errorf("lock pod: %w", err)
		}
		if locked == nil || !locked.Status.CanTransitionTo(model.PodStatusTimedOut) || !locked.Expired(now) {
			return apperrors.AlreadyResolved()
		}

		if err := pods.Delete(ctx, podID); err != nil {
			return fmt.Errorf("delete pod: %w", err)
		}
		if err := s.participants.WithTx(tx).SetWaitingMany(ctx, locked.MemberIDs(), false); err != nil {
			return fmt.Errorf("dequeue participants: %w", err)
		}
		pod = locked
		return nil
	})
	return pod, err
}
