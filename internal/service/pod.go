package service

import (
	"context"
	"fmt"
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
)

const msgNotPodMember = "User is not part of this pod"

type ConfirmResult struct {
	Pod          *model.Pod
	AllConfirmed bool
}

// PodService drives member actions on pods: confirm, reject and the
// read-side lookups.
type PodService struct {
	tx           database.Transactor
	participants repository.ParticipantRepository
	pods         repository.PodRepository
	matches      repository.MatchRepository
	events       PodEventPublisher
	metrics      metrics.Recorder
	clock        clock.Clock
}

func NewPodService(
	tx database.Transactor,
	participants repository.ParticipantRepository,
	pods repository.PodRepository,
	matches repository.MatchRepository,
	events PodEventPublisher,
	rec metrics.Recorder,
	clk clock.Clock,
) *PodService {
	return &PodService{
		tx:           tx,
		participants: participants,
		pods:         pods,
		matches:      matches,
		events:       events,
		metrics:      rec,
		clock:        clk,
	}
}

func (s *PodService) GetCurrentPod(ctx context.Context, participantID string) (*model.Pod, error) {
	pod, err := s.pods.FindPendingByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("find current pod: %w", err)
	}
	if pod == nil {
		return nil, apperrors.New(apperrors.ErrCodeNotFound, "No active pod found")
	}
	return pod, nil
}

func (s *PodService) GetPodHistory(ctx context.Context, participantID string, limit, offset int) ([]model.Match, error) {
	matches, err := s.matches.ListByParticipant(ctx, participantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

// ConfirmPod records participantID's confirmation. The fourth confirmation
// resolves the pod: it becomes confirmed, a match is appended and every
// member leaves the queue, all in one transaction. Confirming twice while
// the pod is still pending is a no-op.
func (s *PodService) ConfirmPod(ctx context.Context, podID, participantID string) (*ConfirmResult, error) {
	pod, err := s.loadForAction(ctx, podID, participantID)
	if err != nil {
		return nil, err
	}
	if pod.Member(participantID).Confirmed {
		return &ConfirmResult{Pod: pod}, nil
	}

	now := s.clock.Now()
	if pod.Expired(now) {
		return nil, apperrors.DeadlinePassed()
	}

	result := &ConfirmResult{}
	changed := false
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		pods := s.pods.WithTx(tx)

		locked, err := pods.FindByIDForUpdate(ctx, podID)
		if err != nil {
			return fmt.Errorf("lock pod: %w", err)
		}
		if locked == nil || locked.Status != model.PodStatusPending {
			return apperrors.AlreadyResolved()
		}
		result.Pod = locked

		member := locked.Member(participantID)
		if member.Confirmed {
			return nil
		}
		if err := pods.ConfirmMember(ctx, podID, participantID); err != nil {
			return fmt.Errorf("confirm member: %w", err)
		}
		member.Confirmed = true
		changed = true

		if !locked.AllConfirmed() {
			return nil
		}
		result.AllConfirmed = true
		return s.completePod(ctx, tx, locked, now)
	})
	if err != nil {
		return nil, err
	}

	pod = result.Pod
	if !changed {
		return result, nil
	}

	log.Info().
		Str("podId", podID).
		Str("participantId", participantID).
		Bool("allConfirmed", result.AllConfirmed).
		Msg("pod confirmation recorded")

	publishPodEvent(ctx, s.events, pod, model.PodEvent{
		Type:          model.PodEventMemberConfirmed,
		PodID:         podID,
		Status:        pod.Status,
		ParticipantID: participantID,
		At:            now,
	})
	if result.AllConfirmed {
		s.metrics.RecordPodResolved(model.PodStatusConfirmed)
		publishPodEvent(ctx, s.events, pod, model.PodEvent{
			Type:   model.PodEventConfirmed,
			PodID:  podID,
			Status: pod.Status,
			At:     now,
			Pod:    pod,
		})
	}

	return result, nil
}

func (s *PodService) completePod(ctx context.Context, tx *sqlx.Tx, pod *model.Pod, now time.Time) error {
	if !pod.Status.CanTransitionTo(model.PodStatusConfirmed) {
		return apperrors.PodNotPending(string(pod.Status))
	}
	resolved, err := s.pods.WithTx(tx).Resolve(ctx, pod.ID, model.PodStatusConfirmed, now)
	if err != nil {
		return fmt.Errorf("resolve pod: %w", err)
	}
	if !resolved {
		return apperrors.AlreadyResolved()
	}

	memberIDs := pod.MemberIDs()
	if _, err := s.matches.WithTx(tx).Create(ctx, model.CreateMatchParams{
		ID:        uuid.NewString(),
		PodID:     pod.ID,
		MemberIDs: memberIDs,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	if err := s.participants.WithTx(tx).MarkPodCompleted(ctx, memberIDs, now); err != nil {
		return fmt.Errorf("update participants: %w", err)
	}

	pod.Status = model.PodStatusConfirmed
	pod.CompletedAt = &now
	deactivate(pod)
	return nil
}

// RejectPod voids the pod for everyone and puts all four members back in
// the queue.
func (s *PodService) RejectPod(ctx context.Context, podID, participantID string) (*model.Pod, error) {
	if _, err := s.loadForAction(ctx, podID, participantID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var pod *model.Pod
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		pods := s.pods.WithTx(tx)

		locked, err := pods.FindByIDForUpdate(ctx, podID)
		if err != nil {
			return fmt.Errorf("lock pod: %w", err)
		}
		if locked == nil || !locked.Status.CanTransitionTo(model.PodStatusRejected) {
			return apperrors.AlreadyResolved()
		}

		if err := pods.RejectMember(ctx, podID, participantID); err != nil {
			return fmt.Errorf("reject member: %w", err)
		}
		resolved, err := pods.Resolve(ctx, podID, model.PodStatusRejected, now)
		if err != nil {
			return fmt.Errorf("resolve pod: %w", err)
		}
		if !resolved {
			return apperrors.AlreadyResolved()
		}
		if err := s.participants.WithTx(tx).SetWaitingMany(ctx, locked.MemberIDs(), true); err != nil {
			return fmt.Errorf("requeue participants: %w", err)
		}

		locked.Status = model.PodStatusRejected
		locked.Member(participantID).Rejected = true
		deactivate(locked)
		pod = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPodResolved(model.PodStatusRejected)
	log.Info().
		Str("podId", podID).
		Str("participantId", participantID).
		Msg("pod rejected")
	publishPodEvent(ctx, s.events, pod, model.PodEvent{
		Type:          model.PodEventRejected,
		PodID:         podID,
		Status:        pod.Status,
		ParticipantID: participantID,
		At:            now,
		Pod:           pod,
	})

	return pod, nil
}

// loadForAction checks the preconditions shared by confirm and reject
// against an unlocked read.
func (s *PodService) loadForAction(ctx context.Context, podID, participantID string) (*model.Pod, error) {
	pod, err := s.pods.FindByID(ctx, podID)
	if err != nil {
		return nil, fmt.Errorf("find pod: %w", err)
	}
	if pod == nil {
		return nil, apperrors.NotFound("Pod")
	}
	if pod.Status != model.PodStatusPending {
		return nil, apperrors.PodNotPending(string(pod.Status))
	}
	if pod.Member(participantID) == nil {
		return nil, apperrors.Forbidden(msgNotPodMember)
	}
	return pod, nil
}

func deactivate(pod *model.Pod) {
	for i := range pod.Members {
		pod.Members[i].Active = false
	}
}
