package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocanvas/protocanvas/internal/provider"
	"github.com/protocanvas/protocanvas/pkg/models"
)

func helloRequest() models.ChatRequest {
	return models.ChatRequest{
		SystemPrompt: "You are helpful.",
		Messages:     []models.Message{{Role: models.RoleUser, Content: "c1: Hello"}},
	}
}

func TestOpenAI_Complete(t *testing.T) {
	var got struct {
		Model    string           `json:"model"`
		Messages []models.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"content":"Hi there"}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	defer srv.Close()

	p := provider.NewOpenAI(provider.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	reply, err := p.Complete(context.Background(), helloRequest())
	require.NoError(t, err)

	assert.Equal(t, "Hi there", reply.Response)
	assert.Equal(t, "gpt-test", reply.Model)
	assert.Equal(t, "openai", reply.Provider)
	require.NotNil(t, reply.Usage)
	assert.EqualValues(t, 7, reply.Usage.TotalTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, models.RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "You are helpful.", got.Messages[0].Content)
	assert.Equal(t, "c1: Hello", got.Messages[1].Content)
}

func imageRequest() models.ChatRequest {
	req := helloRequest()
	req.Messages = append([]models.Message{
		{Role: models.RoleUser, Content: "earlier"},
		{Role: models.RoleAssistant, Content: "ok"},
	}, req.Messages...)
	req.Images = []string{"data:image/png;base64,iVBORw0KGgo="}
	return req
}

func TestOpenAI_AttachesImagesToLastUserTurn(t *testing.T) {
	var got struct {
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"content":"a cat"}}]}`))
	}))
	defer srv.Close()

	p := provider.NewOpenAI(provider.OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), imageRequest())
	require.NoError(t, err)

	require.Len(t, got.Messages, 4)
	assert.JSONEq(t, `"earlier"`, string(got.Messages[1].Content))
	assert.JSONEq(t, `[
		{"type":"text","text":"c1: Hello"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,iVBORw0KGgo="}}
	]`, string(got.Messages[3].Content))
}

func TestDeepSeek_UsesOpenAIWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := provider.NewDeepSeek(provider.OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	assert.Equal(t, "deepseek", p.Name())

	reply, err := p.Complete(context.Background(), helloRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Response)
	assert.Equal(t, "deepseek-chat", reply.Model)
}

func TestOpenAI_Non2xxIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := provider.NewOpenAI(provider.OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), helloRequest())

	var pe *provider.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
	assert.Equal(t, "openai", pe.Provider)
}

func TestMissingAPIKey(t *testing.T) {
	for _, p := range []provider.ChatProvider{
		provider.NewOpenAI(provider.OpenAIConfig{}),
		provider.NewDeepSeek(provider.OpenAIConfig{}),
		provider.NewAnthropic(provider.AnthropicConfig{}),
		provider.NewGemini(provider.GeminiConfig{}),
	} {
		t.Run(p.Name(), func(t *testing.T) {
			_, err := p.Complete(context.Background(), helloRequest())
			require.ErrorIs(t, err, provider.ErrMissingAPIKey)
		})
	}
}

func TestAnthropic_Complete(t *testing.T) {
	var got struct {
		System    string           `json:"system"`
		Messages  []models.Message `json:"messages"`
		MaxTokens int              `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model":"claude-test","content":[{"type":"text","text":"Hi "},{"type":"text","text":"there"}],"usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p := provider.NewAnthropic(provider.AnthropicConfig{APIKey: "ak", BaseURL: srv.URL})
	reply, err := p.Complete(context.Background(), helloRequest())
	require.NoError(t, err)

	assert.Equal(t, "Hi there", reply.Response)
	assert.EqualValues(t, 5, reply.Usage.TotalTokens)
	assert.Equal(t, "You are helpful.", got.System)
	assert.Equal(t, 4096, got.MaxTokens)
	for _, m := range got.Messages {
		assert.NotEqual(t, models.RoleSystem, m.Role)
	}
}

func TestAnthropic_SendsImagesAsBase64Blocks(t *testing.T) {
	var got struct {
		Messages []struct {
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"a cat"}]}`))
	}))
	defer srv.Close()

	p := provider.NewAnthropic(provider.AnthropicConfig{APIKey: "ak", BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), imageRequest())
	require.NoError(t, err)

	require.Len(t, got.Messages, 3)
	assert.JSONEq(t, `"earlier"`, string(got.Messages[0].Content))
	assert.JSONEq(t, `[
		{"type":"image","source":{"type":"base64","media_type":"image/png","data":"iVBORw0KGgo="}},
		{"type":"text","text":"c1: Hello"}
	]`, string(got.Messages[2].Content))
}

func TestEcho(t *testing.T) {
	reply, err := provider.Echo{}.Complete(context.Background(), helloRequest())
	require.NoError(t, err)
	assert.Equal(t, "Echo: c1: Hello", reply.Response)
	assert.False(t, reply.Fallback)
}

func TestFallbackReply_EmbedsLastUserMessage(t *testing.T) {
	req := models.ChatRequest{Messages: []models.Message{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "answer"},
		{Role: models.RoleUser, Content: "what is the weather"},
	}}
	reply := provider.FallbackReply("openai", req)

	assert.True(t, reply.Fallback)
	assert.Contains(t, reply.Response, "what is the weather")
	assert.NotContains(t, reply.Response, "first")
}

func TestProviderError_Unwrap(t *testing.T) {
	inner := errors.New("network down")
	err := &provider.ProviderError{Provider: "openai", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "openai: network down", err.Error())
}
