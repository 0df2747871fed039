// Package server exposes the dashboard API: portfolio targets, scan
// rejections, rebalance advice, alerts and the user-entered budget and
// implemented state.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/dkallos/arbiter/internal/database"
	"github.com/dkallos/arbiter/internal/modules/alerts"
	"github.com/dkallos/arbiter/internal/modules/allocation"
	"github.com/dkallos/arbiter/internal/modules/implemented"
	"github.com/dkallos/arbiter/internal/modules/market"
	"github.com/dkallos/arbiter/internal/modules/rebalancing"
	"github.com/dkallos/arbiter/internal/modules/scanner"
)

// Config holds server configuration
type Config struct {
	Port    int
	Log     zerolog.Logger
	DB      *database.DB
	DataDir string
	DevMode bool

	Markets     *market.Repository
	Allocations *allocation.Repository
	Rejections  *scanner.Repository
	Rebalance   *rebalancing.Repository
	Alerts      *alerts.Repository
	Implemented *implemented.Repository

	// Refresh triggers an immediate pipeline recompute, used after a
	// budget change. May be nil when scheduling is disabled.
	Refresh func() error
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	db     *database.DB

	dataDir     string
	markets     *market.Repository
	allocations *allocation.Repository
	rejections  *scanner.Repository
	rebalance   *rebalancing.Repository
	alerts      *alerts.Repository
	implemented *implemented.Repository
	refresh     func() error
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		db:          cfg.DB,
		dataDir:     cfg.DataDir,
		markets:     cfg.Markets,
		allocations: cfg.Allocations,
		rejections:  cfg.Rejections,
		rebalance:   cfg.Rebalance,
		alerts:      cfg.Alerts,
		implemented: cfg.Implemented,
		refresh:     cfg.Refresh,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/targets", s.handleGetTargets)
		r.Get("/positions", s.handleGetPositions)
		r.Get("/rejections", s.handleGetRejections)
		r.Get("/markets", s.handleGetMarkets)
		r.Get("/rebalance", s.handleGetRebalance)

		r.Put("/budget", s.handlePutBudget)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Post("/{id}/ack", s.handleAckAlert)
		})

		r.Route("/covers", func(r chi.Router) {
			r.Get("/", s.handleListCovers)
			r.Post("/", s.handleAddCover)
			r.Delete("/{id}", s.handleDeleteCover)
		})

		r.Route("/implemented", func(r chi.Router) {
			r.Get("/", s.handleGetImplemented)
			r.Put("/positions", s.handlePutImplementedPositions)
			r.Put("/cash", s.handlePutImplementedCash)
			r.Get("/drift", s.handleGetDrift)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})
	})
}

// Router returns the underlying router, used by handler tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
