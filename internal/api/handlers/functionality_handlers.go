package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/protocanvas/protocanvas/internal/api/middleware"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Execution Handlers ───────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// RunFunctionality handles POST /api/functionalities/{fnId}/run.
// With ?async=true the run is dispatched and 202 returns its id.
func (h *Handlers) RunFunctionality(w http.ResponseWriter, r *http.Request) {
	ws := middleware.GetWorkspace(r.Context())
	fnID := chi.URLParam(r, "fnId")

	if r.URL.Query().Get("async") == "true" {
		doc, err := h.Documents.Get(r.Context(), ws)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		if doc.Functionality(fnID) == nil {
			respondError(w, http.StatusNotFound, "functionality not found: "+fnID)
			return
		}
		respondData(w, http.StatusAccepted, map[string]string{"runId": h.Engine.Dispatch(ws, fnID)})
		return
	}

	out, err := h.Engine.Process(r.Context(), ws, fnID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, out)
}

func (h *Handlers) FunctionalityState(w http.ResponseWriter, r *http.Request) {
	st := h.Engine.State(middleware.GetWorkspace(r.Context()), chi.URLParam(r, "fnId"))
	respondData(w, http.StatusOK, st)
}

func (h *Handlers) FunctionalityHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Engine.History(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "fnId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondData(w, http.StatusOK, msgs)
}

func (h *Handlers) ResetFunctionalityHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.ResetHistory(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "fnId")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FunctionalityInputs handles GET /api/functionalities/inputs/{fnId}.
func (h *Handlers) FunctionalityInputs(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.Preview(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "fnId"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, p)
}
