package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/podpairer/server/internal/errors"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/repository"
)

type QueueStatus struct {
	QueueCount         int  `json:"queueCount"`
	ParticipantInQueue bool `json:"participantInQueue"`
	ParticipantReady   bool `json:"participantReady"`
}

// QueueService toggles a participant's waiting and rematch flags.
type QueueService struct {
	participants repository.ParticipantRepository
}

func NewQueueService(participants repository.ParticipantRepository) *QueueService {
	return &QueueService{participants: participants}
}

func (s *QueueService) JoinQueue(ctx context.Context, participantID string) (*model.Participant, error) {
	return s.setFlags(ctx, participantID, model.QueueFlags{Waiting: true}, "joined queue")
}

func (s *QueueService) LeaveQueue(ctx context.Context, participantID string) (*model.Participant, error) {
	return s.setFlags(ctx, participantID, model.QueueFlags{}, "left queue")
}

// ReadyForNextGame re-enters the queue after a finished game.
func (s *QueueService) ReadyForNextGame(ctx context.Context, participantID string) (*model.Participant, error) {
	return s.setFlags(ctx, participantID, model.QueueFlags{Waiting: true, ReadyForRematch: true}, "ready for next game")
}

func (s *QueueService) FinishPlaying(ctx context.Context, participantID string) (*model.Participant, error) {
	return s.setFlags(ctx, participantID, model.QueueFlags{}, "finished playing")
}

func (s *QueueService) GetQueueStatus(ctx context.Context, participantID string) (*QueueStatus, error) {
	count, err := s.participants.CountWaiting(ctx)
	if err != nil {
		return nil, fmt.Errorf("count waiting: %w", err)
	}
	p, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	if p == nil {
		return nil, apperrors.NotFound("Participant")
	}
	return &QueueStatus{
		QueueCount:         count,
		ParticipantInQueue: p.Waiting,
		ParticipantReady:   p.ReadyForRematch,
	}, nil
}

func (s *QueueService) setFlags(ctx context.Context, participantID string, flags model.QueueFlags, action string) (*model.Participant, error) {
	p, err := s.participants.SetQueueFlags(ctx, participantID, flags)
	if err != nil {
		return nil, fmt.Errorf("update queue flags: %w", err)
	}
	if p == nil {
		return nil, apperrors.NotFound("Participant")
	}
	log.Info().Str("participantId", participantID).Msg(action)
	return p, nil
}
