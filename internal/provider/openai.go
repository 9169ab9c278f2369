package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/protocanvas/protocanvas/pkg/models"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL = "https://api.deepseek.com"
)

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAI talks to /chat/completions. DeepSeek reuses it with its own base URL.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &OpenAI{cfg: cfg, client: &http.Client{Timeout: 120 * time.Second}}
}

// NewDeepSeek creates a DeepSeek provider on the OpenAI wire format.
func NewDeepSeek(cfg OpenAIConfig) *OpenAI {
	cfg.Name = "deepseek"
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDeepSeekBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	return NewOpenAI(cfg)
}

func (p *OpenAI) Name() string { return p.cfg.Name }

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// openAIMessage carries either a plain string or a list of content parts.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

// openAIMessages lays out the conversation, turning the last user turn into
// text plus image_url parts when images are attached.
func openAIMessages(req models.ChatRequest) []openAIMessage {
	msgs := messagesWithSystem(req)
	last := -1
	if len(req.Images) > 0 {
		last = models.LastUserIndex(msgs)
	}
	out := make([]openAIMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openAIMessage{Role: m.Role, Content: m.Content}
		if i != last {
			continue
		}
		parts := []openAIPart{{Type: "text", Text: m.Content}}
		for _, img := range req.Images {
			parts = append(parts, openAIPart{Type: "image_url", ImageURL: &openAIImageURL{URL: img}})
		}
		out[i].Content = parts
	}
	return out
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAI) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	if p.cfg.APIKey == "" {
		return nil, &ProviderError{Provider: p.cfg.Name, Err: ErrMissingAPIKey}
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	body, err := json.Marshal(openAIRequest{Model: model, Messages: openAIMessages(req), MaxTokens: p.cfg.MaxTokens})
	if err != nil {
		return nil, &ProviderError{Provider: p.cfg.Name, Err: fmt.Errorf("encode request: %w", err)}
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: p.cfg.Name, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: p.cfg.Name, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &ProviderError{Provider: p.cfg.Name, Status: httpResp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(respBody)))}
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, &ProviderError{Provider: p.cfg.Name, Err: fmt.Errorf("decode response: %w", err)}
	}

	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}
	if oaiResp.Model != "" {
		model = oaiResp.Model
	}

	return &models.ChatReply{
		Response: content,
		Model:    model,
		Provider: p.cfg.Name,
		Usage: &models.TokenUsage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:  oaiResp.Usage.TotalTokens,
		},
	}, nil
}
