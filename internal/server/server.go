// Package server provides the HTTP server and routing for the portfolio
// tracker.
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

	"github.com/stockyhq/stocky/internal/config"
	"github.com/stockyhq/stocky/internal/events"
	"github.com/stockyhq/stocky/internal/modules/accounting"
	"github.com/stockyhq/stocky/internal/modules/ledger"
	"github.com/stockyhq/stocky/internal/modules/valuation"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	Accountant  *accounting.Accountant
	TradeRepo   *ledger.TradeRepository
	HistoryRepo *valuation.HistoryRepository
	Sampler     *valuation.Sampler
	EventBus    *events.Bus
	Port        int
	DevMode     bool
}

// Server represents the HTTP server
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	cfg         *config.Config
	accountant  *accounting.Accountant
	tradeRepo   *ledger.TradeRepository
	historyRepo *valuation.HistoryRepository
	sampler     *valuation.Sampler
	eventBus    *events.Bus
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		accountant:  cfg.Accountant,
		tradeRepo:   cfg.TradeRepo,
		historyRepo: cfg.HistoryRepo,
		sampler:     cfg.Sampler,
		eventBus:    cfg.EventBus,
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
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (outside /api, no timeout middleware interaction)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Streaming endpoints must not inherit the request timeout
		eventsStreamHandler := NewEventsStreamHandler(s.eventBus, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		wsHandler := NewWebsocketHandler(s.eventBus, s.log)
		r.Get("/ws", wsHandler.ServeHTTP)

		// Everything else gets a hard deadline
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/trade", s.handleTrade)
			r.Get("/trades", s.handleTrades)
			r.Get("/portfolio", s.handlePortfolio)
			r.Get("/gains", s.handleGains)
			r.Get("/history", s.handleHistory)
			r.Get("/health", s.handleHealth)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
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
