package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkallos/arbiter/internal/clients/hyperliquid"
	"github.com/dkallos/arbiter/internal/clients/nasdaq"
	"github.com/dkallos/arbiter/internal/config"
	"github.com/dkallos/arbiter/internal/database"
	"github.com/dkallos/arbiter/internal/modules/alerts"
	"github.com/dkallos/arbiter/internal/modules/allocation"
	"github.com/dkallos/arbiter/internal/modules/funding"
	"github.com/dkallos/arbiter/internal/modules/implemented"
	"github.com/dkallos/arbiter/internal/modules/market"
	"github.com/dkallos/arbiter/internal/modules/rebalancing"
	"github.com/dkallos/arbiter/internal/modules/scanner"
	"github.com/dkallos/arbiter/internal/scheduler"
	"github.com/dkallos/arbiter/internal/server"
	"github.com/dkallos/arbiter/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet; this is the one place plain stderr wins.
		println("failed to load configuration:", err.Error())
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Msg("Starting Arbiter")

	db, err := database.New(database.Config{Path: cfg.DatabasePath()})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Str("path", cfg.DatabasePath()).Msg("Database initialized")

	conn := db.Conn()

	// Clients
	venue := hyperliquid.NewClient(cfg.InfoURL, cfg.TradFiDex, log)
	equities := nasdaq.NewDirectory(cfg.NasdaqListedURL, cfg.OtherListedURL, log)
	notifier := alerts.NewPushover(cfg.PushoverAppToken, cfg.PushoverUserKey, log)

	// Repositories
	marketRepo := market.NewRepository(conn)
	fundingRepo := funding.NewRepository(conn)
	allocationRepo := allocation.NewRepository(conn, log)
	rejectionRepo := scanner.NewRepository(conn)
	rebalanceRepo := rebalancing.NewRepository(conn)
	alertRepo := alerts.NewRepository(conn)
	implementedRepo := implemented.NewRepository(conn)

	// Services
	scanSvc := scanner.NewService(venue, equities, fundingRepo, cfg.DeepScanWorkers, cfg.StockOnlyMode, log)
	alertSvc := alerts.NewService(alertRepo, notifier, log)

	// Jobs
	refreshJob := scheduler.NewMarketRefreshJob(scheduler.MarketRefreshConfig{
		Log:         log,
		DB:          conn,
		Venue:       venue,
		Scanner:     scanSvc,
		Markets:     marketRepo,
		Allocations: allocationRepo,
		Rejections:  rejectionRepo,
		Rebalance:   rebalanceRepo,
		Alerts:      alertSvc,
	})
	deepScanJob := scheduler.NewDeepScanJob(log, scanSvc, marketRepo, allocationRepo, alertSvc)

	sched := scheduler.New(log)
	if !cfg.DisableScheduling {
		if err := sched.AddJob(cfg.RefreshSchedule, refreshJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register market refresh job")
		}
		if err := sched.AddJob(cfg.DeepScanSchedule, deepScanJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register deep scan job")
		}
		sched.Start()
		defer sched.Stop()

		// Populate the dashboard before the first tick lands.
		go func() {
			if err := sched.RunNow(refreshJob); err != nil {
				log.Error().Err(err).Msg("Initial market refresh failed")
			}
		}()
	} else {
		log.Warn().Msg("Scheduling disabled, serving API only")
	}

	srv := server.New(server.Config{
		Port:        cfg.Port,
		Log:         log,
		DB:          db,
		DataDir:     cfg.DataDir,
		DevMode:     cfg.DevMode,
		Markets:     marketRepo,
		Allocations: allocationRepo,
		Rejections:  rejectionRepo,
		Rebalance:   rebalanceRepo,
		Alerts:      alertRepo,
		Implemented: implementedRepo,
		Refresh: func() error {
			return sched.RunNow(refreshJob)
		},
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("WAL checkpoint on shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
