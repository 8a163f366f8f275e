package model

import (
	"time"

	"github.com/lib/pq"
)

// Match is the append-only record of a pod that reached full confirmation.
type Match struct {
	ID        string         `db:"id" json:"id"`
	PodID     string         `db:"pod_id" json:"podId"`
	MemberIDs pq.StringArray `db:"member_ids" json:"memberIds"`
	CreatedAt time.Time      `db:"created_at" json:"date"`
	Players   []MatchPlayer  `db:"-" json:"players,omitempty"`
}

type MatchPlayer struct {
	ID        string `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"firstName"`
	LastName  string `db:"last_name" json:"lastName"`
}

type CreateMatchParams struct {
	ID        string
	PodID     string
	MemberIDs []string
	CreatedAt time.Time
}
