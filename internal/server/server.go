// Package server provides the HTTP server and routing for Stockpile.
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

	"github.com/aristath/stockpile/internal/cache"
	marketdatahandlers "github.com/aristath/stockpile/internal/modules/marketdata/handlers"
	snapshothandlers "github.com/aristath/stockpile/internal/modules/snapshots/handlers"
)

// Config holds server configuration
type Config struct {
	Port               int
	Log                zerolog.Logger
	Cache              *cache.Cache
	MarketDataHandlers *marketdatahandlers.Handler
	SnapshotHandlers   *snapshothandlers.Handler
	DevMode            bool
}

// Server represents the HTTP server
type Server struct {
	router             *chi.Mux
	server             *http.Server
	log                zerolog.Logger
	cache              *cache.Cache
	marketDataHandlers *marketdatahandlers.Handler
	snapshotHandlers   *snapshothandlers.Handler
	cacheHandlers      *CacheHandlers
	systemHandlers     *SystemHandlers
	startedAt          time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:             chi.NewRouter(),
		log:                cfg.Log.With().Str("component", "server").Logger(),
		cache:              cfg.Cache,
		marketDataHandlers: cfg.MarketDataHandlers,
		snapshotHandlers:   cfg.SnapshotHandlers,
		startedAt:          time.Now(),
	}
	s.cacheHandlers = NewCacheHandlers(cfg.Cache, cfg.Log)
	s.systemHandlers = NewSystemHandlers(cfg.Log, s.startedAt)

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
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	allowedOrigins := []string{"*"}
	if !devMode {
		allowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		s.marketDataHandlers.RegisterRoutes(r)
		s.snapshotHandlers.RegisterRoutes(r)
		s.cacheHandlers.RegisterRoutes(r)
		s.systemHandlers.RegisterRoutes(r)
	})
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router (used by tests)
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs each request with method, path, status and duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}
