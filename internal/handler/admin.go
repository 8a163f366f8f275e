package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/podpairer/server/internal/audit"
	"github.com/podpairer/server/internal/service"
)

type PodAssembler interface {
	AssemblePods(ctx context.Context) (*service.AssemblyResult, error)
}

type TimeoutReaper interface {
	SweepTimeouts(ctx context.Context) (*service.SweepResult, error)
}

// AdminHandler runs the scheduler jobs on demand. Results are returned
// as-is, without the success envelope.
type AdminHandler struct {
	assembler PodAssembler
	reaper    TimeoutReaper
}

func NewAdminHandler(assembler PodAssembler, reaper TimeoutReaper) *AdminHandler {
	return &AdminHandler{assembler: assembler, reaper: reaper}
}

// Routes expects the admin middleware upstream.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/create-pods", h.CreatePods)
	r.Post("/handle-timeouts", h.HandleTimeouts)

	return r
}

// POST /api/admin/create-pods
func (h *AdminHandler) CreatePods(w http.ResponseWriter, r *http.Request) {
	result, err := h.assembler.AssemblePods(r.Context())
	if err != nil {
		writeError(w, r, err, "manual pod assembly failed")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventAdminTrigger,
		Details: map[string]interface{}{"job": "assembly", "podsCreated": result.PodsCreated},
	})
	writeJSON(w, http.StatusOK, result)
}

// POST /api/admin/handle-timeouts
func (h *AdminHandler) HandleTimeouts(w http.ResponseWriter, r *http.Request) {
	result, err := h.reaper.SweepTimeouts(r.Context())
	if err != nil {
		writeError(w, r, err, "manual timeout sweep failed")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventAdminTrigger,
		Details: map[string]interface{}{"job": "timeout", "podsRemoved": result.PodsRemoved},
	})
	writeJSON(w, http.StatusOK, result)
}
