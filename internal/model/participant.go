package model

import (
	"time"
)

// Participant is owned by the identity collaborator. The pod core only reads it
// and toggles the queue flags.
type Participant struct {
	ID              string     `db:"id" json:"id"`
	FirstName       string     `db:"first_name" json:"firstName"`
	LastName        string     `db:"last_name" json:"lastName"`
	Email           string     `db:"email" json:"email"`
	TokenHash       *string    `db:"token_hash" json:"-"`
	Waiting         bool       `db:"waiting" json:"inQueue"`
	ReadyForRematch bool       `db:"ready_for_rematch" json:"readyForNextGame"`
	LastPodAt       *time.Time `db:"last_pod_at" json:"lastPodTime,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

func (p *Participant) FullName() string {
	return p.FirstName + " " + p.LastName
}

type QueueFlags struct {
	Waiting         bool
	ReadyForRematch bool
}
