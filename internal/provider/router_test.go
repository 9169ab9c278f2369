package provider_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/protocanvas/protocanvas/internal/provider"
	"github.com/protocanvas/protocanvas/pkg/models"
)

// mockProvider is a test ChatProvider.
type mockProvider struct {
	name  string
	reply string
	err   error
	calls int
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &models.ChatReply{
		Response: m.reply,
		Provider: m.name,
		Usage:    &models.TokenUsage{InputTokens: 2, OutputTokens: 3, TotalTokens: 5},
	}, nil
}

func TestEchoAlwaysRegistered(t *testing.T) {
	r := provider.NewRouter("")

	if _, ok := r.Get("echo"); !ok {
		t.Fatal("Get(echo) not found")
	}
	if got := r.Default().Name(); got != "echo" {
		t.Errorf("Default().Name() = %q, want %q", got, "echo")
	}
}

func TestRouterFromConfig_RegistersVendors(t *testing.T) {
	r := provider.NewRouterFromConfig(provider.Config{})

	for _, want := range []string{"anthropic", "deepseek", "echo", "gemini", "openai"} {
		if _, ok := r.Get(want); !ok {
			t.Errorf("expected provider %q in %v", want, r.List())
		}
	}
	if got := r.For(provider.RouteChat).Name(); got != "openai" {
		t.Errorf("For(chat) without keys = %q, want openai", got)
	}
	if got := r.For(provider.RouteClaude).Name(); got != "openai" {
		t.Errorf("For(claude) without keys = %q, want openai", got)
	}
}

func TestRouterFromConfig_NoKeysAnswersWithFallback(t *testing.T) {
	r := provider.NewRouterFromConfig(provider.Config{})

	for _, route := range []string{provider.RouteChat, provider.RouteClaude} {
		reply, err := r.For(route).Complete(context.Background(), models.ChatRequest{
			Messages: []models.Message{{Role: models.RoleUser, Content: "hello there"}},
		})
		if err != nil {
			t.Fatalf("For(%s).Complete() error = %v", route, err)
		}
		if !reply.Fallback {
			t.Errorf("For(%s).Complete().Fallback = false, want true", route)
		}
		if !strings.Contains(reply.Response, "hello there") {
			t.Errorf("For(%s).Complete().Response = %q, want the last user message", route, reply.Response)
		}
	}
}

func TestRouterFromConfig_EchoIsOptIn(t *testing.T) {
	r := provider.NewRouterFromConfig(provider.Config{Default: "echo"})

	reply, err := r.For(provider.RouteChat).Complete(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "ping"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply.Response != "Echo: ping" || reply.Fallback {
		t.Errorf("Complete() = %+v, want a plain echo reply", reply)
	}
}

func TestRouterFromConfig_PicksKeyedVendor(t *testing.T) {
	r := provider.NewRouterFromConfig(provider.Config{
		DeepSeek:  provider.OpenAIConfig{APIKey: "d"},
		Anthropic: provider.AnthropicConfig{APIKey: "a"},
	})

	if got := r.For(provider.RouteChat).Name(); got != "deepseek" {
		t.Errorf("For(chat) = %q, want deepseek", got)
	}
	if got := r.For(provider.RouteClaude).Name(); got != "anthropic" {
		t.Errorf("For(claude) = %q, want anthropic", got)
	}
}

func TestFor_UnknownRouteUsesDefault(t *testing.T) {
	r := provider.NewRouter("mock")
	r.Register(&mockProvider{name: "mock", reply: "ok"})

	if got := r.For("nope").Name(); got != "mock" {
		t.Errorf("For(nope).Name() = %q, want %q", got, "mock")
	}
}

func TestFor_FallbackOnUpstreamError(t *testing.T) {
	r := provider.NewRouter("broken")
	broken := &mockProvider{name: "broken", err: errors.New("network down")}
	r.Register(broken)

	reply, err := r.Default().Complete(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "c1: Hello"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v, want fallback reply", err)
	}
	if !reply.Fallback {
		t.Error("Complete().Fallback = false, want true")
	}
	if broken.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", broken.calls)
	}

	usage := r.Usage()
	if len(usage) != 1 || usage[0].Failures != 1 {
		t.Errorf("Usage() = %+v, want one failure for broken", usage)
	}
}

func TestUsage_AccumulatesTokens(t *testing.T) {
	r := provider.NewRouter("mock")
	r.Register(&mockProvider{name: "mock", reply: "ok"})

	p := r.Default()
	for i := 0; i < 3; i++ {
		if _, err := p.Complete(context.Background(), models.ChatRequest{}); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
	}

	usage := r.Usage()
	if len(usage) != 1 {
		t.Fatalf("Usage() len = %d, want 1", len(usage))
	}
	if usage[0].Calls != 3 || usage[0].TotalTokens != 15 {
		t.Errorf("Usage()[0] = %+v, want 3 calls and 15 tokens", usage[0])
	}
}

func TestWithFallback_Idempotent(t *testing.T) {
	p := provider.WithFallback(&mockProvider{name: "m"})
	if provider.WithFallback(p) != p {
		t.Error("WithFallback() wrapped an already wrapped provider")
	}
}
