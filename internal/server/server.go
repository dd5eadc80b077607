package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/workprep/internal/catalog"
	"github.com/me/workprep/internal/config"
	"github.com/me/workprep/internal/resources"
	"github.com/me/workprep/internal/store"
)

// Version is reported by the health and discovery endpoints.
const Version = "0.1.0"

// Server is the read-only workprep REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	catalog   *catalog.Catalog
	ledger    store.Ledger
	allocator *resources.Allocator
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLedger serves recorded work items from ledger. Without it the
// /workitems routes answer 404.
func WithLedger(ledger store.Ledger) Option {
	return func(s *Server) {
		s.ledger = ledger
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, cat *catalog.Catalog, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		catalog:   cat,
		allocator: resources.NewAllocator(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/genomes", func(r chi.Router) {
			r.Get("/", s.handleListGenomes)
			r.Get("/{build}", s.handleGetGenome)
		})

		r.Get("/runs", s.handleListRuns)
		r.Route("/workitems", func(r chi.Router) {
			r.Get("/", s.handleListWorkItems)
			r.Route("/{entity}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkItem)
				r.Get("/resources/{tool}", s.handleGetToolResources)
			})
		})
	})
}
