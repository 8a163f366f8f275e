package model

import "time"

// PodEvent is pushed to every member of a pod when it changes state.
type PodEvent struct {
	Type          PodEventType `json:"type"`
	PodID         string       `json:"podId"`
	Status        PodStatus    `json:"status"`
	ParticipantID string       `json:"participantId,omitempty"`
	At            time.Time    `json:"at"`
	Pod           *Pod         `json:"pod,omitempty"`
}
