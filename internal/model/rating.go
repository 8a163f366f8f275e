package model

import (
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

type Rating struct {
	ID        string    `db:"id" json:"id"`
	RaterID   string    `db:"rater_id" json:"rater"`
	RatedID   string    `db:"rated_id" json:"rated"`
	PodID     string    `db:"pod_id" json:"pod"`
	Value     int       `db:"value" json:"rating"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type UpsertRatingParams struct {
	RaterID string
	RatedID string
	PodID   string
	Value   int
}

type RatingSummary struct {
	AverageRating float64 `json:"averageRating"`
	UserRating    *int    `json:"userRating"`
	TotalRatings  int     `json:"totalRatings"`
}
