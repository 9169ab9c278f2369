package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	genai "google.golang.org/genai"

	"github.com/protocanvas/protocanvas/pkg/models"
)

// GeminiConfig configures the Gemini API backend.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini wraps the official genai client. The client is built on first use
// so a process without a key can still start.
type Gemini struct {
	cfg GeminiConfig

	mu  sync.Mutex
	cli *genai.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &Gemini{cfg: cfg}
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) client(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cli != nil {
		return p.cli, nil
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	p.cli = cli
	return cli, nil
}

func (p *Gemini) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	if p.cfg.APIKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrMissingAPIKey}
	}
	cli, err := p.client(ctx)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("create client: %w", err)}
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	last := -1
	if len(req.Images) > 0 {
		last = models.LastUserIndex(req.Messages)
	}
	var system string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for i, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			system += m.Content
		case models.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			c := genai.NewContentFromText(m.Content, genai.RoleUser)
			if i == last {
				c.Parts = append(c.Parts, geminiImages(req.Images)...)
			}
			contents = append(contents, c)
		}
	}
	if req.SystemPrompt != "" {
		system = req.SystemPrompt + system
	}

	var gcfg *genai.GenerateContentConfig
	if system != "" {
		gcfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := cli.Models.GenerateContent(ctx, model, contents, gcfg)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}

	reply := &models.ChatReply{
		Response: resp.Text(),
		Model:    model,
		Provider: p.Name(),
	}
	if u := resp.UsageMetadata; u != nil {
		reply.Usage = &models.TokenUsage{
			InputTokens:  int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount),
			TotalTokens:  int64(u.TotalTokenCount),
		}
	}
	return reply, nil
}

// geminiImages turns data URLs into inline parts. Other URLs are skipped
// since the Gemini API only fetches its own file URIs.
func geminiImages(images []string) []*genai.Part {
	parts := make([]*genai.Part, 0, len(images))
	for _, img := range images {
		mediaType, payload, ok := splitDataURL(img)
		if !ok {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, mediaType))
	}
	return parts
}
