package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/podpairer/server/internal/httputil"
	"github.com/podpairer/server/internal/middleware"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/service"
)

type QueueService interface {
	JoinQueue(ctx context.Context, participantID string) (*model.Participant, error)
	LeaveQueue(ctx context.Context, participantID string) (*model.Participant, error)
	ReadyForNextGame(ctx context.Context, participantID string) (*model.Participant, error)
	FinishPlaying(ctx context.Context, participantID string) (*model.Participant, error)
	GetQueueStatus(ctx context.Context, participantID string) (*service.QueueStatus, error)
}

type QueueHandler struct {
	queueService QueueService
}

func NewQueueHandler(queueService QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

// Routes expects the auth middleware upstream.
func (h *QueueHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Put("/join", h.flagAction(h.queueService.JoinQueue, "Joined the queue successfully"))
	r.Put("/leave", h.flagAction(h.queueService.LeaveQueue, "Left the queue successfully"))
	r.Put("/ready", h.flagAction(h.queueService.ReadyForNextGame, "Ready for next game"))
	r.Put("/finish", h.flagAction(h.queueService.FinishPlaying, "Finished playing"))
	r.Get("/status", h.Status)

	return r
}

type queueAction func(ctx context.Context, participantID string) (*model.Participant, error)

func (h *QueueHandler) flagAction(action queueAction, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participant := middleware.GetParticipant(r.Context())

		updated, err := action(r.Context(), participant.ID)
		if err != nil {
			writeError(w, r, err, "failed to update queue flags")
			return
		}

		httputil.WriteSuccess(w, message, updated)
	}
}

// GET /api/queue/status
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())

	status, err := h.queueService.GetQueueStatus(r.Context(), participant.ID)
	if err != nil {
		writeError(w, r, err, "failed to get queue status")
		return
	}

	httputil.WriteSuccess(w, "", status)
}
