package service

import (
	"context"
	"fmt"

	apperrors "github.com/podpairer/server/internal/errors"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/repository"
)

type RatingService struct {
	pods    repository.PodRepository
	ratings repository.RatingRepository
}

func NewRatingService(pods repository.PodRepository, ratings repository.RatingRepository) *RatingService {
	return &RatingService{pods: pods, ratings: ratings}
}

// RatePlayer stores raterID's rating of ratedID for a confirmed pod both
// played in. Rating again for the same pod replaces the earlier value.
func (s *RatingService) RatePlayer(ctx context.Context, podID, raterID, ratedID string, value int) (*model.Rating, error) {
	if value < model.MinRating || value > model.MaxRating {
		return nil, apperrors.ValidationError(fmt.Sprintf("Rating must be between %d and %d", model.MinRating, model.MaxRating))
	}

	pod, err := s.pods.FindByID(ctx, podID)
	if err != nil {
		return nil, fmt.Errorf("find pod: %w", err)
	}
	if pod == nil || pod.Status != model.PodStatusConfirmed {
		return nil, apperrors.NotFound("Confirmed pod")
	}
	if pod.Member(raterID) == nil || pod.Member(ratedID) == nil {
		return nil, apperrors.Forbidden("Both users must be part of the pod")
	}
	if raterID == ratedID {
		return nil, apperrors.ValidationError("Cannot rate yourself")
	}

	rating, err := s.ratings.Upsert(ctx, model.UpsertRatingParams{
		RaterID: raterID,
		RatedID: ratedID,
		PodID:   podID,
		Value:   value,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert rating: %w", err)
	}
	return rating, nil
}

func (s *RatingService) GetPlayerRatings(ctx context.Context, viewerID, playerID string) (*model.RatingSummary, error) {
	summary, err := s.ratings.Summary(ctx, playerID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("rating summary: %w", err)
	}
	return summary, nil
}
