// Package main is the entry point for Stockpile, the market data cache
// service behind the analysis pipeline. It serves prices, financial metrics,
// line items, insider trades and company news from an in-memory TTL cache,
// fetching from the Financial Datasets API on miss, and persists the cache
// to disk snapshots (with optional offsite backup) across restarts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/stockpile/internal/cache"
	"github.com/aristath/stockpile/internal/clients/findata"
	"github.com/aristath/stockpile/internal/config"
	"github.com/aristath/stockpile/internal/database"
	marketdatahandlers "github.com/aristath/stockpile/internal/modules/marketdata/handlers"
	"github.com/aristath/stockpile/internal/modules/snapshots"
	snapshothandlers "github.com/aristath/stockpile/internal/modules/snapshots/handlers"
	"github.com/aristath/stockpile/internal/reliability"
	"github.com/aristath/stockpile/internal/scheduler"
	"github.com/aristath/stockpile/internal/server"
	"github.com/aristath/stockpile/pkg/logger"
)

func main() {
	// Load configuration first to get the log level.
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting Stockpile")

	// The cache is constructed exactly once here and injected into every
	// consumer; there is no package-level singleton.
	marketCache := cache.New(log)
	if cfg.CacheTTL > 0 {
		marketCache.SetTTL(cfg.CacheTTL)
	}

	// Warm start from the last snapshot. A missing snapshot file means a
	// cold start; a corrupt one is a configuration problem worth dying for.
	if err := marketCache.LoadSnapshot(cfg.SnapshotPath); err != nil {
		log.Fatal().Err(err).Str("path", cfg.SnapshotPath).Msg("Failed to load cache snapshot")
	}

	// Snapshot catalog database.
	catalogDB, err := database.Open(cfg.CatalogPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open catalog database")
	}
	defer catalogDB.Close()

	catalog, err := snapshots.NewCatalog(catalogDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot catalog")
	}

	// Upstream API client, cache-first.
	client := findata.NewClient(cfg.FindataAPIKey, marketCache, log)
	if cfg.FindataBaseURL != "" {
		client.SetBaseURL(cfg.FindataBaseURL)
	}
	if cfg.FindataAPIKey == "" {
		log.Warn().Msg("FINDATA_API_KEY not configured - upstream requests will be unauthenticated")
	}

	// Background jobs: periodic snapshots, and offsite backup if configured.
	sched := scheduler.New(log)
	snapshotJob := scheduler.NewSnapshotJob(marketCache, catalog, cfg.SnapshotPath, log)
	if err := sched.AddJob("@every "+cfg.SnapshotInterval.String(), snapshotJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot job")
	}

	if cfg.Backup != nil {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage client")
		}
		backupSvc := reliability.NewSnapshotBackupService(s3Client, catalog, cfg.Backup.Retention, log)
		if err := sched.AddJob("@daily", scheduler.NewBackupJob(backupSvc, log)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Offsite snapshot backup enabled")
	} else {
		log.Info().Msg("Offsite snapshot backup not configured")
	}

	sched.Start()

	// Live price stream, if configured.
	var stream *findata.PriceStream
	if cfg.StreamURL != "" && len(cfg.StreamTickers) > 0 {
		stream = findata.NewPriceStream(cfg.StreamURL, cfg.StreamTickers, marketCache, log)
		stream.Start()
	}

	// HTTP server.
	srv := server.New(server.Config{
		Port:               cfg.Port,
		Log:                log,
		Cache:              marketCache,
		MarketDataHandlers: marketdatahandlers.NewHandler(client, marketCache, log),
		SnapshotHandlers:   snapshothandlers.NewHandler(marketCache, catalog, cfg.SnapshotPath, log),
		DevMode:            cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	if stream != nil {
		stream.Stop()
	}
	sched.Stop()

	// Final snapshot so the next start resumes from current state.
	if err := marketCache.SaveSnapshot(cfg.SnapshotPath); err != nil {
		log.Error().Err(err).Msg("Failed to write final cache snapshot")
	} else if _, err := catalog.Record(cfg.SnapshotPath); err != nil {
		log.Error().Err(err).Msg("Failed to catalog final cache snapshot")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
