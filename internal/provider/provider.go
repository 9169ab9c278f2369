// Package provider implements the chat-completion providers behind the
// execution engine and the /api/ai routes.
//
// Every vendor satisfies ChatProvider. The Router selects one per route from
// configuration, tracks latency and usage, and applies the fallback policy in
// one place: an upstream failure becomes a synthesized apology reply flagged
// Fallback instead of an error.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/protocanvas/protocanvas/pkg/models"
)

// ChatProvider completes a conversation.
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error)
}

// ErrMissingAPIKey is wrapped by ProviderError when a vendor has no key.
var ErrMissingAPIKey = errors.New("api key not configured")

// ProviderError reports an upstream failure: network, auth, non-2xx status
// or an undecodable body.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FallbackReply synthesizes the apology answer returned when the upstream
// call fails. It embeds the last user message so the demo still reads as a
// conversation.
func FallbackReply(providerName string, req models.ChatRequest) *models.ChatReply {
	last := strings.TrimSpace(models.LastUserMessage(req.Messages))
	var b strings.Builder
	b.WriteString("I'm sorry, I can't reach the AI service right now.")
	if last != "" {
		b.WriteString(" You asked: \"")
		b.WriteString(last)
		b.WriteString("\".")
	}
	b.WriteString(" Please try again in a moment.")
	return &models.ChatReply{
		Response: b.String(),
		Provider: providerName,
		Model:    "fallback",
		Fallback: true,
	}
}

// messagesWithSystem prepends the system prompt as a system message, the
// layout OpenAI-compatible endpoints expect.
func messagesWithSystem(req models.ChatRequest) []models.Message {
	out := make([]models.Message, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		out = append(out, models.Message{Role: models.RoleSystem, Content: req.SystemPrompt})
	}
	return append(out, req.Messages...)
}

// splitDataURL splits a base64 data URL into its media type and payload.
func splitDataURL(s string) (mediaType, payload string, ok bool) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", "", false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", false
	}
	mediaType, ok = strings.CutSuffix(meta, ";base64")
	if !ok || mediaType == "" {
		return "", "", false
	}
	return mediaType, payload, true
}
