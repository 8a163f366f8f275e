package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/podpairer/server/internal/errors"
	"github.com/podpairer/server/internal/httputil"
	"github.com/podpairer/server/internal/middleware"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/service"
)

type PodService interface {
	GetCurrentPod(ctx context.Context, participantID string) (*model.Pod, error)
	GetPodHistory(ctx context.Context, participantID string, limit, offset int) ([]model.Match, error)
	ConfirmPod(ctx context.Context, podID, participantID string) (*service.ConfirmResult, error)
	RejectPod(ctx context.Context, podID, participantID string) (*model.Pod, error)
}

type RatingService interface {
	RatePlayer(ctx context.Context, podID, raterID, ratedID string, value int) (*model.Rating, error)
	GetPlayerRatings(ctx context.Context, viewerID, playerID string) (*model.RatingSummary, error)
}

type PodHandler struct {
	podService    PodService
	ratingService RatingService
	actionLimit   func(http.Handler) http.Handler
}

// NewPodHandler wires the pod routes. actionLimit wraps the state-changing
// routes only; pass nil to leave them unlimited.
func NewPodHandler(podService PodService, ratingService RatingService, actionLimit func(http.Handler) http.Handler) *PodHandler {
	if actionLimit == nil {
		actionLimit = func(next http.Handler) http.Handler { return next }
	}
	return &PodHandler{
		podService:    podService,
		ratingService: ratingService,
		actionLimit:   actionLimit,
	}
}

// Routes expects the auth middleware upstream.
func (h *PodHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/current", h.Current)
	r.Get("/history", h.History)
	r.Get("/ratings/{playerId}", h.Ratings)

	r.Group(func(r chi.Router) {
		r.Use(h.actionLimit)
		r.Put("/{id}/confirm", h.Confirm)
		r.Put("/{id}/reject", h.Reject)
		r.Post("/{podId}/rate/{playerId}", h.Rate)
	})

	return r
}

// GET /api/pods/current
func (h *PodHandler) Current(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())

	pod, err := h.podService.GetCurrentPod(r.Context(), participant.ID)
	if err != nil {
		writeError(w, r, err, "failed to get current pod")
		return
	}

	httputil.WriteSuccess(w, "", pod)
}

// GET /api/pods/history?limit=&offset=
func (h *PodHandler) History(w http.ResponseWriter, r *http.Request) {
	participant := middleware.GetParticipant(r.Context())
	page := ParsePagination(r)

	matches, err := h.podService.GetPodHistory(r.Context(), participant.ID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err, "failed to get pod history")
		return
	}

	httputil.WriteList(w, matches)
}

// PUT /api/pods/{id}/confirm
func (h *PodHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	podID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	participant := middleware.GetParticipant(r.Context())

	result, err := h.podService.ConfirmPod(r.Context(), podID, participant.ID)
	if err != nil {
		writeError(w, r, err, "failed to confirm pod")
		return
	}

	message := "Pod confirmation acknowledged"
	if result.AllConfirmed {
		message = "Pod confirmed by all players"
	}
	httputil.WriteSuccess(w, message, result.Pod)
}

// PUT /api/pods/{id}/reject
func (h *PodHandler) Reject(w http.ResponseWriter, r *http.Request) {
	podID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	participant := middleware.GetParticipant(r.Context())

	pod, err := h.podService.RejectPod(r.Context(), podID, participant.ID)
	if err != nil {
		writeError(w, r, err, "failed to reject pod")
		return
	}

	httputil.WriteSuccess(w, "Pod rejected successfully", pod)
}

// POST /api/pods/{podId}/rate/{playerId}
func (h *PodHandler) Rate(w http.ResponseWriter, r *http.Request) {
	podID, ok := uuidParam(w, r, "podId")
	if !ok {
		return
	}
	playerID, ok := uuidParam(w, r, "playerId")
	if !ok {
		return
	}

	var req struct {
		Rating *int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "expected JSON"))
		return
	}
	if req.Rating == nil {
		httputil.WriteError(w, apperrors.MissingRequired("rating"))
		return
	}

	participant := middleware.GetParticipant(r.Context())
	rating, err := h.ratingService.RatePlayer(r.Context(), podID, participant.ID, playerID, *req.Rating)
	if err != nil {
		writeError(w, r, err, "failed to rate player")
		return
	}

	httputil.WriteSuccess(w, "Player rated successfully", rating)
}

// GET /api/pods/ratings/{playerId}
func (h *PodHandler) Ratings(w http.ResponseWriter, r *http.Request) {
	playerID, ok := uuidParam(w, r, "playerId")
	if !ok {
		return
	}
	participant := middleware.GetParticipant(r.Context())

	summary, err := h.ratingService.GetPlayerRatings(r.Context(), participant.ID, playerID)
	if err != nil {
		writeError(w, r, err, "failed to get player ratings")
		return
	}

	httputil.WriteSuccess(w, "", summary)
}
