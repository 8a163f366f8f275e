package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/podpairer/server/internal/model"
)

type RatingRepository interface {
	// Upsert writes the rating keyed by (rater, rated, pod); a second write
	// for the same key replaces the value.
	Upsert(ctx context.Context, params model.UpsertRatingParams) (*model.Rating, error)
	// FindLatestRatingsAmong returns, for every ordered pair inside
	// participantIDs, the most recently written rating.
	FindLatestRatingsAmong(ctx context.Context, participantIDs []string) ([]model.Rating, error)
	Summary(ctx context.Context, ratedID, viewerID string) (*model.RatingSummary, error)
}

type ratingRepo struct {
	db sqlxDB
}

func NewRatingRepository(db *sqlx.DB) RatingRepository {
	return &ratingRepo{db: db}
}

func (r *ratingRepo) Upsert(ctx context.Context, params model.UpsertRatingParams) (*model.Rating, error) {
	var rating model.Rating
	err := r.db.GetContext(ctx, &rating, `
		INSERT INTO ratings (id, rater_id, rated_id, pod_id, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (rater_id, rated_id, pod_id) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
		RETURNING *
	`, uuid.NewString(), params.RaterID, params.RatedID, params.PodID, params.Value)
	if err != nil {
		return nil, err
	}
	return &rating, nil
}

func (r *ratingRepo) FindLatestRatingsAmong(ctx context.Context, participantIDs []string) ([]model.Rating, error) {
	var ratings []model.Rating
	err := r.db.SelectContext(ctx, &ratings, `
		SELECT DISTINCT ON (rater_id, rated_id) *
		FROM ratings
		WHERE rater_id = ANY($1::uuid[]) AND rated_id = ANY($1::uuid[])
		ORDER BY rater_id, rated_id, updated_at DESC
	`, pq.Array(participantIDs))
	return ratings, err
}

func (r *ratingRepo) Summary(ctx context.Context, ratedID, viewerID string) (*model.RatingSummary, error) {
	var row struct {
		Average float64 `db:"average"`
		Total   int     `db:"total"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT COALESCE(AVG(value), 0)::float8 AS average, COUNT(*) AS total
		FROM ratings
		WHERE rated_id = $1
	`, ratedID)
	if err != nil {
		return nil, err
	}

	summary := &model.RatingSummary{
		AverageRating: row.Average,
		TotalRatings:  row.Total,
	}

	var latest []int
	err = r.db.SelectContext(ctx, &latest, `
		SELECT value FROM ratings
		WHERE rated_id = $1 AND rater_id = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`, ratedID, viewerID)
	if err != nil {
		return nil, err
	}
	if len(latest) > 0 {
		summary.UserRating = &latest[0]
	}
	return summary, nil
}
