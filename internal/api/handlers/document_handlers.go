package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/api/middleware"
	"github.com/protocanvas/protocanvas/internal/registry"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Document Handlers ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Documents.Get(r.Context(), middleware.GetWorkspace(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, doc)
}

func (h *Handlers) ReplaceDocument(w http.ResponseWriter, r *http.Request) {
	var doc models.Document
	if err := decodeBody(r, &doc); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ws := middleware.GetWorkspace(r.Context())
	saved, err := h.Documents.Replace(r.Context(), ws, &doc)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	log.Info().Str("workspace", ws).Int("components", len(saved.Components)).Msg("Document replaced")
	respondData(w, http.StatusOK, saved)
}

// ── Components ───────────────────────────────────────────────

func (h *Handlers) AddComponent(w http.ResponseWriter, r *http.Request) {
	var c models.ComponentRecord
	if err := decodeBody(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	added, err := h.Documents.AddComponent(r.Context(), middleware.GetWorkspace(r.Context()), c)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, added)
}

func (h *Handlers) UpdateComponent(w http.ResponseWriter, r *http.Request) {
	var c models.ComponentRecord
	if err := decodeBody(r, &c); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	updated, err := h.Documents.UpdateComponent(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "componentId"), c)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteComponent(w http.ResponseWriter, r *http.Request) {
	if err := h.Documents.DeleteComponent(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "componentId")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type valueBody struct {
	Value string `json:"value"`
}

func (h *Handlers) SetComponentValue(w http.ResponseWriter, r *http.Request) {
	var body valueBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	c, err := h.Documents.SetComponentValue(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "componentId"), body.Value)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, c)
}

// ── Frames ───────────────────────────────────────────────────

func (h *Handlers) AddFrame(w http.ResponseWriter, r *http.Request) {
	var f models.FrameRecord
	if err := decodeBody(r, &f); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	added, err := h.Documents.AddFrame(r.Context(), middleware.GetWorkspace(r.Context()), f)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, added)
}

func (h *Handlers) DeleteFrame(w http.ResponseWriter, r *http.Request) {
	if err := h.Documents.DeleteFrame(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "frameId")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SetHomeFrame(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FrameID string `json:"frameId"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ws := middleware.GetWorkspace(r.Context())
	if err := h.Documents.SetHomeFrame(r.Context(), ws, body.FrameID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"homeFrameId": body.FrameID})
}

// ── Functionalities ──────────────────────────────────────────

func (h *Handlers) AddFunctionality(w http.ResponseWriter, r *http.Request) {
	var fn models.AIFunctionality
	if err := decodeBody(r, &fn); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	added, err := h.Documents.AddFunctionality(r.Context(), middleware.GetWorkspace(r.Context()), fn)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, added)
}

func (h *Handlers) UpdateFunctionality(w http.ResponseWriter, r *http.Request) {
	var fn models.AIFunctionality
	if err := decodeBody(r, &fn); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	updated, err := h.Documents.UpdateFunctionality(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "fnId"), fn)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteFunctionality(w http.ResponseWriter, r *http.Request) {
	if err := h.Documents.DeleteFunctionality(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "fnId")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Datasets ─────────────────────────────────────────────────

func (h *Handlers) AddDataset(w http.ResponseWriter, r *http.Request) {
	var ds models.Dataset
	if err := decodeBody(r, &ds); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	added, err := h.Documents.AddDataset(r.Context(), middleware.GetWorkspace(r.Context()), ds)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, added)
}

func (h *Handlers) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.Documents.DeleteDataset(r.Context(), middleware.GetWorkspace(r.Context()), chi.URLParam(r, "datasetId")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Registry ─────────────────────────────────────────────────

// ListComponentTypes handles GET /api/components.
func (h *Handlers) ListComponentTypes(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"categories": registry.Categories(),
		"components": registry.All(),
	})
}
