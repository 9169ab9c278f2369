package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/protocanvas/protocanvas/pkg/models"
)

// Route names used by the HTTP surface and the engine.
const (
	RouteChat   = "chat"
	RouteClaude = "claude"
)

var tracer = otel.Tracer("protocanvas/provider")

// Config selects and configures providers.
type Config struct {
	Default   string // provider used by RouteChat; empty picks the first keyed vendor, else openai
	Claude    string // provider used by RouteClaude; empty means anthropic when keyed
	OpenAI    OpenAIConfig
	DeepSeek  OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
}

// Stats is the per-provider usage summary.
type Stats struct {
	Provider     string `json:"provider"`
	Calls        int64  `json:"calls"`
	Failures     int64  `json:"failures"`
	AvgLatencyMs int64  `json:"avgLatencyMs"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	TotalTokens  int64  `json:"totalTokens"`
}

// Router maps route names to providers.
type Router struct {
	mu          sync.RWMutex
	providers   map[string]ChatProvider
	routes      map[string]string
	defaultName string

	// provider name → usage, latency as a rolling average
	statsMu sync.Mutex
	stats   map[string]*Stats
}

// NewRouter creates an empty router. The echo provider is always present.
func NewRouter(defaultName string) *Router {
	r := &Router{
		providers: make(map[string]ChatProvider),
		routes:    make(map[string]string),
		stats:     make(map[string]*Stats),
	}
	r.Register(Echo{})
	if defaultName == "" {
		defaultName = "echo"
	}
	r.defaultName = defaultName
	return r
}

// NewRouterFromConfig registers every vendor and binds the chat and claude
// routes. Vendors without a key stay registered; calling them yields a
// ProviderError that the fallback policy answers. With no key at all the
// routes still point at openai, so an unconfigured server replies with the
// fallback message. echo is only used when named explicitly.
func NewRouterFromConfig(cfg Config) *Router {
	def := cfg.Default
	if def == "" {
		switch {
		case cfg.OpenAI.APIKey != "":
			def = "openai"
		case cfg.DeepSeek.APIKey != "":
			def = "deepseek"
		case cfg.Anthropic.APIKey != "":
			def = "anthropic"
		case cfg.Gemini.APIKey != "":
			def = "gemini"
		default:
			def = "openai"
		}
	}

	r := NewRouter(def)
	r.Register(NewOpenAI(cfg.OpenAI))
	r.Register(NewDeepSeek(cfg.DeepSeek))
	r.Register(NewAnthropic(cfg.Anthropic))
	r.Register(NewGemini(cfg.Gemini))

	claude := cfg.Claude
	if claude == "" {
		claude = def
		if cfg.Anthropic.APIKey != "" {
			claude = "anthropic"
		}
	}
	r.SetRoute(RouteChat, def)
	r.SetRoute(RouteClaude, claude)

	log.Info().
		Str("default", def).
		Str("claude", claude).
		Strs("providers", r.List()).
		Msg("Provider router configured")
	return r
}

// Register adds or replaces a provider under its name.
func (r *Router) Register(p ChatProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// SetRoute binds a route to a provider name.
func (r *Router) SetRoute(route, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[route] = name
}

// Get returns the raw provider registered under name.
func (r *Router) Get(name string) (ChatProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the registered provider names, sorted.
func (r *Router) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the provider for RouteChat.
func (r *Router) Default() ChatProvider {
	return r.For(RouteChat)
}

// For returns the provider bound to route, instrumented and wrapped with the
// fallback policy. Unknown routes and names resolve to the default provider.
func (r *Router) For(route string) ChatProvider {
	r.mu.RLock()
	name, ok := r.routes[route]
	if !ok {
		name = r.defaultName
	}
	p, ok := r.providers[name]
	if !ok {
		p, ok = r.providers[r.defaultName]
	}
	if !ok {
		p = r.providers["echo"]
	}
	r.mu.RUnlock()

	return WithFallback(&instrumented{inner: p, router: r})
}

// Usage returns a snapshot of per-provider stats, sorted by provider name.
func (r *Router) Usage() []Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	out := make([]Stats, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (r *Router) record(name string, latencyMs int64, reply *models.ChatReply, err error) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	s, ok := r.stats[name]
	if !ok {
		s = &Stats{Provider: name}
		r.stats[name] = s
	}
	s.Calls++
	if err != nil {
		s.Failures++
		return
	}
	if s.AvgLatencyMs == 0 {
		s.AvgLatencyMs = latencyMs
	} else {
		// Exponential moving average
		s.AvgLatencyMs = (s.AvgLatencyMs*7 + latencyMs*3) / 10
	}
	if reply != nil && reply.Usage != nil {
		s.InputTokens += reply.Usage.InputTokens
		s.OutputTokens += reply.Usage.OutputTokens
		s.TotalTokens += reply.Usage.TotalTokens
	}
}

// ── Decorators ──────────────────────────────────────────────

type instrumented struct {
	inner  ChatProvider
	router *Router
}

func (p *instrumented) Name() string { return p.inner.Name() }

func (p *instrumented) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	ctx, span := tracer.Start(ctx, "provider.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider.name", p.inner.Name()),
		attribute.Int("provider.messages", len(req.Messages)),
	)

	start := time.Now()
	reply, err := p.inner.Complete(ctx, req)
	latencyMs := time.Since(start).Milliseconds()
	p.router.record(p.inner.Name(), latencyMs, reply, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	reply.LatencyMs = latencyMs
	return reply, nil
}

type fallback struct {
	inner ChatProvider
}

// WithFallback wraps p so an upstream failure never reaches the caller: the
// error is logged and replaced with FallbackReply.
func WithFallback(p ChatProvider) ChatProvider {
	if _, ok := p.(*fallback); ok {
		return p
	}
	return &fallback{inner: p}
}

func (p *fallback) Name() string { return p.inner.Name() }

func (p *fallback) Complete(ctx context.Context, req models.ChatRequest) (*models.ChatReply, error) {
	reply, err := p.inner.Complete(ctx, req)
	if err == nil {
		return reply, nil
	}
	log.Warn().
		Err(err).
		Str("provider", p.inner.Name()).
		Msg("Provider call failed, answering with fallback")
	return FallbackReply(p.inner.Name(), req), nil
}
