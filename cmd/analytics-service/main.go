package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"bidding-engine/internal/bootstrap"
	"bidding-engine/internal/config"
	"bidding-engine/internal/infrastructure/mysql"
	"bidding-engine/internal/services"
	"bidding-engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting analytics service", "config", cfg.GetConfigString())

	if cfg.Events.Driver == config.EventsLocal {
		log.Warn("Local events only reach this process; the audit log will stay empty")
	}

	components, err := bootstrap.Build(context.Background(), cfg, log)
	if err != nil {
		log.Error("Failed to initialize components", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Error("Failed to close connections", "error", err)
		}
	}()

	// The audit log lives in MySQL whatever store the auctions use.
	db, err := components.OpenMySQL(context.Background(), cfg)
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	if err := mysql.Migrate(context.Background(), db); err != nil {
		log.Error("Failed to migrate MySQL", "error", err)
		os.Exit(1)
	}

	analyticsService := services.NewAnalyticsService(mysql.NewMySQLBidRepository(db), log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := analyticsService.Start(ctx, components.Subscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Analytics service failed", "error", err)
			stop()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down analytics service...")
	stop()
	<-done
	log.Info("Analytics service stopped")
}
