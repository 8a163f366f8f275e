package model

type PodStatus string

const (
	PodStatusPending   PodStatus = "pending"
	PodStatusConfirmed PodStatus = "confirmed"
	PodStatusRejected  PodStatus = "rejected"
	PodStatusTimedOut  PodStatus = "timedOut"
	PodStatusCompleted PodStatus = "completed"
)

// CanTransitionTo reports whether a pod in status s may move to next.
// Only pending pods resolve; confirmed pods may later be marked completed.
func (s PodStatus) CanTransitionTo(next PodStatus) bool {
	switch s {
	case PodStatusPending:
		return next == PodStatusConfirmed || next == PodStatusRejected || next == PodStatusTimedOut
	case PodStatusConfirmed:
		return next == PodStatusCompleted
	default:
		return false
	}
}

func (s PodStatus) IsTerminal() bool {
	return s != PodStatusPending
}

type PodEventType string

const (
	PodEventAssigned        PodEventType = "pod_assigned"
	PodEventMemberConfirmed PodEventType = "pod_member_confirmed"
	PodEventConfirmed       PodEventType = "pod_confirmed"
	PodEventRejected        PodEventType = "pod_rejected"
	PodEventTimedOut        PodEventType = "pod_timed_out"
)
