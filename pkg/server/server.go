// Package server wires the protocanvas services into a ready-to-serve HTTP
// handler. The CLI builds one Server per process.
//
// Usage:
//
//	cfg, _ := config.Load("")
//	srv, err := server.NewWithConfig(ctx, cfg)
//	defer srv.Close(ctx)
//	go srv.RunMode.Run(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/protocanvas/protocanvas/internal/api"
	"github.com/protocanvas/protocanvas/internal/api/handlers"
	"github.com/protocanvas/protocanvas/internal/config"
	"github.com/protocanvas/protocanvas/internal/document"
	"github.com/protocanvas/protocanvas/internal/engine"
	"github.com/protocanvas/protocanvas/internal/provider"
	"github.com/protocanvas/protocanvas/internal/publish"
	"github.com/protocanvas/protocanvas/internal/runmode"
	"github.com/protocanvas/protocanvas/internal/store"
	"github.com/protocanvas/protocanvas/internal/telemetry"
)

// Server holds the initialized protocanvas services.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	Config    *config.Config
	Store     store.Store
	Documents *document.Service
	Providers *provider.Router
	Engine    *engine.Engine
	RunMode   *runmode.Manager
	Published *publish.Store

	// ShutdownFunc flushes telemetry on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and builds a Server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds a Server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Server.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	var history store.HistoryStore = store.NewEphemeralHistory()
	if cfg.History.Persist {
		history = dataStore
	}

	docs := document.NewService(dataStore)
	providers := provider.NewRouterFromConfig(ProviderConfig(cfg.Providers))
	eng := engine.New(docs, providers.For(provider.RouteChat), history)
	rm := runmode.NewManager(docs, eng, cfg.RunMode.SessionTTL, !cfg.History.Persist)

	pub, err := publish.NewStore(cfg.Publish.Capacity)
	if err != nil {
		dataStore.Close()
		return nil, err
	}

	h := handlers.New(docs, eng, providers, rm, pub)
	log.Info().
		Str("store", cfg.Store.Driver).
		Bool("persist_history", cfg.History.Persist).
		Msg("Services initialized")

	return &Server{
		Handler:      api.NewRouter(cfg, h),
		Config:       cfg,
		Store:        dataStore,
		Documents:    docs,
		Providers:    providers,
		Engine:       eng,
		RunMode:      rm,
		Published:    pub,
		ShutdownFunc: shutdown,
	}, nil
}

// OpenStore opens and migrates the configured store.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	var s store.Store
	switch cfg.Driver {
	case "", "memory":
		s = store.NewMemoryStore(cfg.DataDir)
		log.Info().Str("data_dir", cfg.DataDir).Msg("In-memory store initialized")
	case "sqlite", "postgres":
		sqlStore, err := store.OpenSQL(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
		}
		s = sqlStore
		log.Info().Str("driver", cfg.Driver).Msg("SQL store initialized")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// ProviderConfig converts the provider section of the configuration.
func ProviderConfig(c config.ProvidersConfig) provider.Config {
	return provider.Config{
		Default: c.Default,
		Claude:  c.Claude,
		OpenAI: provider.OpenAIConfig{
			APIKey: c.OpenAI.APIKey, BaseURL: c.OpenAI.BaseURL,
			Model: c.OpenAI.Model, MaxTokens: c.OpenAI.MaxTokens,
		},
		DeepSeek: provider.OpenAIConfig{
			APIKey: c.DeepSeek.APIKey, BaseURL: c.DeepSeek.BaseURL,
			Model: c.DeepSeek.Model, MaxTokens: c.DeepSeek.MaxTokens,
		},
		Anthropic: provider.AnthropicConfig{
			APIKey: c.Anthropic.APIKey, BaseURL: c.Anthropic.BaseURL,
			Model: c.Anthropic.Model, MaxTokens: c.Anthropic.MaxTokens,
		},
		Gemini: provider.GeminiConfig{APIKey: c.Gemini.APIKey, Model: c.Gemini.Model},
	}
}

// Close stops run sessions, waits for background runs, then releases the
// store and flushes telemetry.
func (s *Server) Close(ctx context.Context) error {
	s.RunMode.Close()
	s.Engine.Wait()
	return errors.Join(s.Store.Close(), s.ShutdownFunc(ctx))
}
