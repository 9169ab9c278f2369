package models

import "encoding/json"

// ── Chat ─────────────────────────────────────────────────────

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role is one the providers accept.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// LastUserMessage returns the content of the last user turn, or "".
func LastUserMessage(msgs []Message) string {
	if i := LastUserIndex(msgs); i >= 0 {
		return msgs[i].Content
	}
	return ""
}

// LastUserIndex returns the index of the last user turn, or -1.
func LastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// ChatRequest is the provider-neutral completion request. Images are data
// URLs attached to the last user turn.
type ChatRequest struct {
	SystemPrompt string          `json:"systemPrompt"`
	Messages     []Message       `json:"messages"`
	Images       []string        `json:"images,omitempty"`
	Model        string          `json:"model,omitempty"`
	Schema       json.RawMessage `json:"schema,omitempty"`
}

// ChatReply is the provider-neutral completion result. Fallback is set when
// the reply was synthesized locally because the upstream call failed.
type ChatReply struct {
	Response       string      `json:"response"`
	Model          string      `json:"model,omitempty"`
	Provider       string      `json:"provider,omitempty"`
	Usage          *TokenUsage `json:"usage,omitempty"`
	Fallback       bool        `json:"fallback,omitempty"`
	StructuredData any         `json:"structuredData,omitempty"`
	Error          string      `json:"error,omitempty"`
	LatencyMs      int64       `json:"latencyMs,omitempty"`
}

type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}
