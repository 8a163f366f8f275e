package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/podpairer/server/internal/model"
)

// PodEventPublisher fans a pod event out to the given participants.
type PodEventPublisher interface {
	PublishPodEvent(ctx context.Context, recipients []string, event model.PodEvent) error
}

// publishPodEvent runs after the state change committed, so a failed publish
// is only logged.
func publishPodEvent(ctx context.Context, pub PodEventPublisher, pod *model.Pod, event model.PodEvent) {
	if pub == nil || pod == nil {
		return
	}
	if err := pub.PublishPodEvent(ctx, pod.MemberIDs(), event); err != nil {
		log.Warn().
			Err(err).
			Str("podId", pod.ID).
			Str("event", string(event.Type)).
			Msg("failed to publish pod event")
	}
}
