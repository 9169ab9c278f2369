package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/protocanvas/protocanvas/internal/generate"
	"github.com/protocanvas/protocanvas/internal/provider"
	"github.com/protocanvas/protocanvas/internal/structured"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── AI Handlers ──────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

type chatBody struct {
	SystemPrompt string           `json:"systemPrompt"`
	Messages     []models.Message `json:"messages"`
	Images       []string         `json:"images,omitempty"`
	Model        string           `json:"model,omitempty"`
	Schema       json.RawMessage  `json:"schema,omitempty"`
}

func (b *chatBody) validate() error {
	if len(b.Messages) == 0 {
		return fmt.Errorf("messages is required")
	}
	for i, m := range b.Messages {
		if !models.ValidRole(m.Role) {
			return fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
	}
	return nil
}

func (b *chatBody) request() models.ChatRequest {
	return models.ChatRequest{
		SystemPrompt: b.SystemPrompt,
		Messages:     b.Messages,
		Images:       b.Images,
		Model:        b.Model,
		Schema:       b.Schema,
	}
}

// Chat handles POST /api/ai/chat on the default provider.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, provider.RouteChat)
}

// ClaudeChat handles POST /api/ai/claude-chat and /api/ai/claude. A schema
// in the body switches to structured output.
func (h *Handlers) ClaudeChat(w http.ResponseWriter, r *http.Request) {
	h.chat(w, r, provider.RouteClaude)
}

func (h *Handlers) chat(w http.ResponseWriter, r *http.Request, route string) {
	var body chatBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: messages must be an array of {role, content}")
		return
	}
	if err := body.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := structured.Complete(r.Context(), h.Providers.For(route), body.request())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, reply)
}

// Component handles POST /api/ai/component.
func (h *Handlers) Component(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt      string `json:"prompt"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	desc := body.Description
	if desc == "" {
		desc = body.Prompt
	}
	code, err := generate.NewComponent(r.Context(), h.Providers.For(provider.RouteChat), desc)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, code)
}

// GeneratePrototype handles POST /api/generate-prototype.
func (h *Handlers) GeneratePrototype(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := generate.NewPrototype(r.Context(), h.Providers.For(provider.RouteChat), body.Prompt)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, p)
}

// Usage handles GET /api/ai/usage.
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.Providers.Usage())
}

// ListProviders handles GET /api/ai/providers.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"default":   h.Providers.Default().Name(),
		"claude":    h.Providers.For(provider.RouteClaude).Name(),
		"providers": h.Providers.List(),
	})
}
