package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/protocanvas/protocanvas/internal/api/middleware"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Publish Handlers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Publish handles POST /api/publish. Without a document in the body the
// workspace's current document is published.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title    string           `json:"title"`
		Document *models.Document `json:"document"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc := body.Document
	if doc == nil {
		var err error
		doc, err = h.Documents.Get(r.Context(), middleware.GetWorkspace(r.Context()))
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
	}

	p, err := h.Published.Publish(body.Title, doc)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, p)
}

// GetPublished handles GET /api/publish?id=.
func (h *Handlers) GetPublished(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	h.getPublished(w, r, id)
}

// Preview handles GET /p/{id}, the public share link.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	h.getPublished(w, r, chi.URLParam(r, "id"))
}

func (h *Handlers) getPublished(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.Published.Get(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, p)
}
