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
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicConfig configures the Claude messages endpoint.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Anthropic talks to /v1/messages.
type Anthropic struct {
	cfg    AnthropicConfig
	client *http.Client
}

// NewAnthropic creates a Claude provider.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-20241022"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Anthropic{cfg: cfg, client: &http.Client{Timeout: 120 * time.Second}}
}

func (p *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

func anthropicImage(img string) anthropicBlock {
	if mediaType, data, ok := splitDataURL(img); ok {
		return anthropicBlock{Type: "image", Source: &anthropicSource{Type: "base64", MediaType: mediaType, Data: data}}
	}
	return anthropicBlock{Type: "image", Source: &anthropicSource{Type: "url", URL: img}}
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Anthropic) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	if p.cfg.APIKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrMissingAPIKey}
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	// Claude takes the system prompt out of band and rejects system turns
	// inside messages.
	system := req.SystemPrompt
	last := -1
	if len(req.Images) > 0 {
		last = models.LastUserIndex(req.Messages)
	}
	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == models.RoleSystem {
			system = strings.TrimSpace(system + "\n\n" + m.Content)
			continue
		}
		if i != last {
			msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
			continue
		}
		blocks := make([]anthropicBlock, 0, len(req.Images)+1)
		for _, img := range req.Images {
			blocks = append(blocks, anthropicImage(img))
		}
		blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: blocks})
	}

	body, err := json.Marshal(anthropicRequest{Model: model, System: system, Messages: msgs, MaxTokens: p.cfg.MaxTokens})
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("encode request: %w", err)}
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("request failed: %w", err)}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &ProviderError{Provider: p.Name(), Status: httpResp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(respBody)))}
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	var content strings.Builder
	for _, c := range anthResp.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}
	if anthResp.Model != "" {
		model = anthResp.Model
	}

	return &models.ChatReply{
		Response: content.String(),
		Model:    model,
		Provider: p.Name(),
		Usage: &models.TokenUsage{
			InputTokens:  anthResp.Usage.InputTokens,
			OutputTokens: anthResp.Usage.OutputTokens,
			TotalTokens:  anthResp.Usage.InputTokens + anthResp.Usage.OutputTokens,
		},
	}, nil
}
