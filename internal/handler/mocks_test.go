package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/podpairer/server/internal/middleware"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/service"
)

const (
	testParticipantID = "11111111-1111-4111-8111-111111111111"
	testPlayerID      = "22222222-2222-4222-8222-222222222222"
	testPodID         = "33333333-3333-4333-8333-333333333333"
)

type mockQueueService struct {
	setFlagsFunc  func(ctx context.Context, action, participantID string) (*model.Participant, error)
	getStatusFunc func(ctx context.Context, participantID string) (*service.QueueStatus, error)
}

func (m *mockQueueService) flags(ctx context.Context, action, id string) (*model.Participant, error) {
	if m.setFlagsFunc != nil {
		return m.setFlagsFunc(ctx, action, id)
	}
	return &model.Participant{ID: id}, nil
}

func (m *mockQueueService) JoinQueue(ctx context.Context, id string) (*model.Participant, error) {
	return m.flags(ctx, "join", id)
}

func (m *mockQueueService) LeaveQueue(ctx context.Context, id string) (*model.Participant, error) {
	return m.flags(ctx, "leave", id)
}

func (m *mockQueueService) ReadyForNextGame(ctx context.Context, id string) (*model.Participant, error) {
	return m.flags(ctx, "ready", id)
}

func (m *mockQueueService) FinishPlaying(ctx context.Context, id string) (*model.Participant, error) {
	return m.flags(ctx, "finish", id)
}

func (m *mockQueueService) GetQueueStatus(ctx context.Context, id string) (*service.QueueStatus, error) {
	if m.getStatusFunc != nil {
		return m.getStatusFunc(ctx, id)
	}
	return &service.QueueStatus{}, nil
}

type mockPodService struct {
	getCurrentFunc func(ctx context.Context, participantID string) (*model.Pod, error)
	historyFunc    func(ctx context.Context, participantID string, limit, offset int) ([]model.Match, error)
	confirmFunc    func(ctx context.Context, podID, participantID string) (*service.ConfirmResult, error)
	rejectFunc     func(ctx context.Context, podID, participantID string) (*model.Pod, error)
}

func (m *mockPodService) GetCurrentPod(ctx context.Context, participantID string) (*model.Pod, error) {
	return m.getCurrentFunc(ctx, participantID)
}

func (m *mockPodService) GetPodHistory(ctx context.Context, participantID string, limit, offset int) ([]model.Match, error) {
	return m.historyFunc(ctx, participantID, limit, offset)
}

func (m *mockPodService) ConfirmPod(ctx context.Context, podID, participantID string) (*service.ConfirmResult, error) {
	return m.confirmFunc(ctx, podID, participantID)
}

func (m *mockPodService) RejectPod(ctx context.Context, podID, participantID string) (*model.Pod, error) {
	return m.rejectFunc(ctx, podID, participantID)
}

type mockRatingService struct {
	rateFunc    func(ctx context.Context, podID, raterID, ratedID string, value int) (*model.Rating, error)
	summaryFunc func(ctx context.Context, viewerID, playerID string) (*model.RatingSummary, error)
}

func (m *mockRatingService) RatePlayer(ctx context.Context, podID, raterID, ratedID string, value int) (*model.Rating, error) {
	return m.rateFunc(ctx, podID, raterID, ratedID, value)
}

func (m *mockRatingService) GetPlayerRatings(ctx context.Context, viewerID, playerID string) (*model.RatingSummary, error) {
	return m.summaryFunc(ctx, viewerID, playerID)
}

// serve routes req through router as the test participant.
func serve(router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req = req.WithContext(middleware.WithParticipant(req.Context(), &model.Participant{ID: testParticipantID}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
