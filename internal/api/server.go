// Package api provides the HTTP API server and handlers for the Marginalia engagement service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/marginaliapress/marginalia-server/internal/config"
	"github.com/marginaliapress/marginalia-server/internal/content"
	"github.com/marginaliapress/marginalia-server/internal/ratelimit"
	"github.com/marginaliapress/marginalia-server/internal/sse"
	"github.com/marginaliapress/marginalia-server/internal/store"
)

// Version is the API version reported by the health endpoint.
const Version = "1.0.0"

// Server holds dependencies for HTTP handlers.
type Server struct {
	store        *store.Store
	services     *Services
	library      *content.Library
	sseHandler   *sse.Handler
	router       *chi.Mux
	api          huma.API
	logger       *slog.Logger
	writeLimiter *ratelimit.KeyedRateLimiter
	adminToken   string
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, services *Services, library *content.Library, sseHandler *sse.Handler, cfg *config.Config, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Reader-ID", "X-Admin-Token"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	humaConfig := huma.DefaultConfig("Marginalia API", Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"adminToken": {
			Type: "apiKey",
			In:   "header",
			Name: "X-Admin-Token",
		},
	}

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:        st,
		services:     services,
		library:      library,
		sseHandler:   sseHandler,
		router:       router,
		api:          api,
		logger:       logger,
		writeLimiter: ratelimit.New(cfg.Engagement.WriteRPS, cfg.Engagement.WriteBurst),
		adminToken:   cfg.Admin.Token,
	}

	s.registerHealthRoutes()
	s.registerBookRoutes()
	s.registerEngagementRoutes()
	s.registerCommentRoutes()

	// SSE stream stays on plain chi; huma's typed model doesn't fit a
	// long-lived event stream.
	router.Get("/api/v1/events/stream", s.sseHandler.ServeHTTP)

	return s
}

// allowedOrigins returns the configured CORS origins, defaulting to any
// origin in development so local reading views can connect.
func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.Server.AllowedOrigins) > 0 {
		return cfg.Server.AllowedOrigins
	}
	return []string{"*"}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases server-held resources.
func (s *Server) Close() {
	s.writeLimiter.Stop()
}
