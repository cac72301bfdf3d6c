// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/howard-nolan/reigate/internal/config"
	"github.com/howard-nolan/reigate/internal/metrics"
	"github.com/howard-nolan/reigate/internal/units"
	"github.com/howard-nolan/reigate/internal/upstream"
)

// Server holds the HTTP router and the dependencies handlers need: the
// read-only unit registry built at startup, the REI client, and the
// observability plumbing. Handlers share no other state, so concurrent
// requests are fully independent.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	registry *units.Registry
	rei      *upstream.Client
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(cfg *config.Config, registry *units.Registry, rei *upstream.Client, m *metrics.Metrics, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		rei:      rei,
		metrics:  m,
		log:      log,
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions.
func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)

	// Recoverer catches handler panics and returns a 500 instead of
	// killing the process.
	r.Use(middleware.Recoverer)

	r.Post("/chat/{unitID}", s.handleChat)
	r.Get("/units", s.handleUnits)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface; every request
// is delegated to chi's router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
