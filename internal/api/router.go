package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/protocanvas/protocanvas/internal/api/handlers"
	"github.com/protocanvas/protocanvas/internal/api/middleware"
	"github.com/protocanvas/protocanvas/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys)

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Workspace)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Workspace", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// Public share links
	r.Get("/p/{id}", h.Preview)

	r.Route("/api", func(r chi.Router) {
		// Provider proxy
		r.Route("/ai", func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Post("/chat", h.Chat)
			r.Post("/claude-chat", h.ClaudeChat)
			r.Post("/claude", h.ClaudeChat)
			r.Post("/component", h.Component)
			r.Get("/usage", h.Usage)
			r.Get("/providers", h.ListProviders)
		})

		r.Post("/generate-prototype", h.GeneratePrototype)

		r.Route("/publish", func(r chi.Router) {
			r.Post("/", h.Publish)
			r.Get("/", h.GetPublished)
		})

		// Canvas document
		r.Route("/document", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Put("/", h.ReplaceDocument)
			r.Put("/home", h.SetHomeFrame)

			r.Route("/components", func(r chi.Router) {
				r.Post("/", h.AddComponent)
				r.Route("/{componentId}", func(r chi.Router) {
					r.Put("/", h.UpdateComponent)
					r.Delete("/", h.DeleteComponent)
					r.Put("/value", h.SetComponentValue)
				})
			})
			r.Route("/frames", func(r chi.Router) {
				r.Post("/", h.AddFrame)
				r.Delete("/{frameId}", h.DeleteFrame)
			})
			r.Route("/functionalities", func(r chi.Router) {
				r.Post("/", h.AddFunctionality)
				r.Put("/{fnId}", h.UpdateFunctionality)
				r.Delete("/{fnId}", h.DeleteFunctionality)
			})
			r.Route("/datasets", func(r chi.Router) {
				r.Post("/", h.AddDataset)
				r.Delete("/{datasetId}", h.DeleteDataset)
			})
		})

		r.Get("/components", h.ListComponentTypes)

		// Execution
		r.Route("/functionalities", func(r chi.Router) {
			r.Get("/inputs/{fnId}", h.FunctionalityInputs)
			r.Route("/{fnId}", func(r chi.Router) {
				r.Post("/run", h.RunFunctionality)
				r.Get("/state", h.FunctionalityState)
				r.Get("/history", h.FunctionalityHistory)
				r.Delete("/history", h.ResetFunctionalityHistory)
			})
		})

		// Run mode
		r.Route("/run/sessions", func(r chi.Router) {
			r.Post("/", h.StartRunSession)
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", h.RenderRunSession)
				r.Delete("/", h.EndRunSession)
				r.Post("/click/{componentId}", h.ClickComponent)
				r.Put("/inputs/{componentId}", h.InputComponent)
				r.Post("/navigate/{frameId}", h.NavigateRunSession)
				r.Get("/ws", h.RunSessionStream)
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "protocanvas",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Server.Version,
			"service": "protocanvas",
		})
	}
}
