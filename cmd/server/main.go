// Package main is the entry point for the stocky portfolio tracking server.
// The application maintains an append-only trade ledger, derives FIFO
// position state from it, and samples total portfolio worth on two
// cadences: a fast broadcast-only tick and a slower persisted tick.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockyhq/stocky/internal/config"
	"github.com/stockyhq/stocky/internal/di"
	"github.com/stockyhq/stocky/internal/server"
	"github.com/stockyhq/stocky/pkg/logger"
)

// main orchestrates the startup sequence:
// 1. Loads configuration from environment variables
// 2. Initializes logging
// 3. Wires all dependencies via the DI container (databases, repositories,
//    services) and replays the trade ledger into in-memory lot state
// 4. Starts the HTTP server for API endpoints
// 5. Starts the valuation scheduler (fast and durable sampling jobs)
// 6. Waits for a shutdown signal and shuts down gracefully
//
// The application uses a 2-database architecture:
// - ledger.db: Immutable trade log (maximum durability, fsync per write)
// - history.db: Valuation time series with a rolling retention window
func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Structured logging (zerolog) with configurable level
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting stocky")

	// Wire all dependencies using DI container. This opens the databases,
	// applies schemas, creates repositories and services, rebuilds the
	// derived position state from the ledger, and registers the valuation
	// sampling jobs with the scheduler.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Both databases must be closed on exit so WAL checkpoints are written.
	defer container.Close()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		Accountant:  container.Accountant,
		TradeRepo:   container.TradeRepo,
		HistoryRepo: container.HistoryRepo,
		Sampler:     container.Sampler,
		EventBus:    container.EventBus,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	// Start server in goroutine so the scheduler can start concurrently
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Start the valuation scheduler. The fast job broadcasts total worth
	// over the event bus; the durable job persists samples to history.db.
	container.Scheduler.Start()
	log.Info().
		Dur("fast_interval", cfg.FastSampleInterval).
		Dur("durable_interval", cfg.DurableSampleInterval).
		Msg("Valuation sampling started")

	// Block until SIGINT (Ctrl+C) or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop the scheduler first so no sample write races the DB close.
	// Stop blocks until running jobs have finished.
	container.Scheduler.Stop()

	// The HTTP server gets up to 10 seconds to finish in-flight requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
