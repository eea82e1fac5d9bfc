// Package main is the entry point for the fundtrail activity extraction and
// scoring engine. The application ingests archived 13F-style filing pages,
// reconstructs each manager's trading activity as an immutable ledger, and
// computes multi-factor scores over the resulting universe.
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

	"github.com/fundtrail/fundtrail/internal/config"
	"github.com/fundtrail/fundtrail/internal/database"
	"github.com/fundtrail/fundtrail/internal/di"
	"github.com/fundtrail/fundtrail/internal/pipeline"
	"github.com/fundtrail/fundtrail/internal/reliability"
	"github.com/fundtrail/fundtrail/internal/scheduler"
	"github.com/fundtrail/fundtrail/internal/server"
	"github.com/fundtrail/fundtrail/pkg/logger"
)

// main orchestrates the system startup sequence:
// 1. Loads configuration from environment variables
// 2. Initializes logging
// 3. Wires all dependencies via DI container (databases, repositories, services)
// 4. Imports snapshots and prices when import paths are configured
// 5. Registers scheduled jobs (pipeline runs, backups, maintenance)
// 6. Starts the HTTP server
// 7. Waits for shutdown signal and performs graceful shutdown
//
// The application uses a 3-database architecture:
// - snapshots.db: Raw filing HTML keyed by manager and period
// - ledger.db: Immutable activity ledger (managers, holdings, activities)
// - cache.db: Recomputable data (prices, run history, score tables)
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting fundtrail")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// One-time imports. Both are idempotent upserts, so pointing the engine
	// at the same directory twice is harmless.
	if cfg.SnapshotsDir != "" {
		count, err := container.SnapshotRepo.ImportDir(cfg.SnapshotsDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.SnapshotsDir).Msg("Snapshot import failed")
		}
		log.Info().Int("count", count).Str("dir", cfg.SnapshotsDir).Msg("Snapshots imported")
	}

	if cfg.PricesCSV != "" {
		count, err := container.PriceRepo.ImportFile(cfg.PricesCSV)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.PricesCSV).Msg("Price import failed")
		}
		log.Info().Int("count", count).Str("path", cfg.PricesCSV).Msg("Prices imported")
	}

	// Scheduled jobs
	sched := scheduler.New(log)

	if cfg.RunSchedule != "" {
		if err := sched.AddJob(cfg.RunSchedule, pipeline.NewJob(container.Pipeline)); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RunSchedule).Msg("Failed to schedule pipeline runs")
		}
	}

	databases := map[string]*database.DB{
		"snapshots": container.SnapshotsDB,
		"ledger":    container.LedgerDB,
		"cache":     container.CacheDB,
	}

	if err := sched.AddJob("@daily", reliability.NewMaintenanceJob(databases, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule maintenance")
	}

	if container.BackupService != nil {
		if err := sched.AddJob(cfg.BackupSchedule, reliability.NewBackupJob(container.BackupService)); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.BackupSchedule).Msg("Failed to schedule backups")
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(cfg, container, log)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
