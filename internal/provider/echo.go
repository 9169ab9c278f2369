package provider

import (
	"context"
	"strings"

	"github.com/protocanvas/protocanvas/pkg/models"
)

// Echo answers without a network call. Select it with providers.default: echo
// for offline demos and tests.
type Echo struct{}

func (Echo) Name() string { return "echo" }

func (Echo) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ProviderError{Provider: "echo", Err: err}
	}
	last := models.LastUserMessage(req.Messages)
	resp := "Echo: " + strings.TrimSpace(last)
	words := int64(len(strings.Fields(last)))
	return &models.ChatReply{
		Response: resp,
		Model:    "echo",
		Provider: "echo",
		Usage: &models.TokenUsage{
			InputTokens:  words,
			OutputTokens: words + 1,
			TotalTokens:  2*words + 1,
		},
	}, nil
}
