package model

import (
	"time"
)

const PodSize = 4

type PodMember struct {
	PodID         string `db:"pod_id" json:"-"`
	Position      int    `db:"position" json:"-"`
	ParticipantID string `db:"participant_id" json:"participantId"`
	Confirmed     bool   `db:"confirmed" json:"confirmed"`
	Rejected      bool   `db:"rejected" json:"rejected"`
	Active        bool   `db:"active" json:"-"`
	FirstName     string `db:"first_name" json:"firstName,omitempty"`
	LastName      string `db:"last_name" json:"lastName,omitempty"`
}

type Pod struct {
	ID                   string      `db:"id" json:"id"`
	Status               PodStatus   `db:"status" json:"status"`
	ConfirmationDeadline time.Time   `db:"confirmation_deadline" json:"confirmationDeadline"`
	CreatedAt            time.Time   `db:"created_at" json:"createdAt"`
	CompletedAt          *time.Time  `db:"completed_at" json:"completedAt,omitempty"`
	UpdatedAt            time.Time   `db:"updated_at" json:"updatedAt"`
	Members              []PodMember `db:"-" json:"players"`
}

func (p *Pod) MemberIDs() []string {
	ids := make([]string, len(p.Members))
	for i, m := range p.Members {
		ids[i] = m.ParticipantID
	}
	return ids
}

// Member returns the member entry for participantID, or nil.
func (p *Pod) Member(participantID string) *PodMember {
	for i := range p.Members {
		if p.Members[i].ParticipantID == participantID {
			return &p.Members[i]
		}
	}
	return nil
}

func (p *Pod) AllConfirmed() bool {
	if len(p.Members) != PodSize {
		return false
	}
	for _, m := range p.Members {
		if !m.Confirmed {
			return false
		}
	}
	return true
}

func (p *Pod) Expired(now time.Time) bool {
	return now.After(p.ConfirmationDeadline)
}

type CreatePodParams struct {
	ID                   string
	MemberIDs            []string
	ConfirmationDeadline time.Time
	CreatedAt            time.Time
}
