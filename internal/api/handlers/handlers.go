// Package handlers implements the HTTP handlers for the protocanvas server.
// Payloads are wrapped as {"data": ...}; failures as {"error": "..."}.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/document"
	"github.com/protocanvas/protocanvas/internal/engine"
	"github.com/protocanvas/protocanvas/internal/generate"
	"github.com/protocanvas/protocanvas/internal/provider"
	"github.com/protocanvas/protocanvas/internal/publish"
	"github.com/protocanvas/protocanvas/internal/runmode"
	"github.com/protocanvas/protocanvas/internal/store"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Documents *document.Service
	Engine    *engine.Engine
	Providers *provider.Router
	RunMode   *runmode.Manager
	Published *publish.Store
}

// New creates a Handlers instance with all dependencies.
func New(docs *document.Service, eng *engine.Engine, providers *provider.Router, rm *runmode.Manager, pub *publish.Store) *Handlers {
	return &Handlers{
		Documents: docs,
		Engine:    eng,
		Providers: providers,
		RunMode:   rm,
		Published: pub,
	}
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, map[string]interface{}{"data": data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// respondServiceError maps domain errors onto status codes. Anything
// unrecognised is logged and reported as a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid  *document.ValidationError
		notFound *store.ErrNotFound
	)
	switch {
	case errors.As(err, &invalid),
		errors.Is(err, engine.ErrInputMissing),
		errors.Is(err, generate.ErrPromptRequired),
		errors.Is(err, publish.ErrDocumentRequired):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound), errors.Is(err, engine.ErrFunctionalityNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, runmode.ErrNotOnActiveFrame):
		respondError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
