package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidding-engine/internal/api/handlers"
	apimiddleware "bidding-engine/internal/api/middleware"
	"bidding-engine/internal/bootstrap"
	"bidding-engine/internal/config"
	"bidding-engine/pkg/clock"
	"bidding-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const leaderCampaignInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

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

	engine, _, scheduler := components.Engine(cfg, clock.System())

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			apimiddleware.HeaderUserID,
			apimiddleware.HeaderUserRole,
		},
		MaxAge: 86400,
	}))
	e.Use(apimiddleware.EchoIdentity(apimiddleware.NewAuthenticator(cfg.Auth.JWTSecret), log))

	handlers.NewAuctionHandler(engine, log).Register(e)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-service",
			"timestamp": time.Now().Format(time.RFC3339),
			"store":     cfg.Store.Driver,
		})
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	leaderDone := make(chan struct{})
	go func() {
		bootstrap.CampaignForLeadership(ctx, components.Leader, cfg.Instance.ID, leaderCampaignInterval, log)
		close(leaderDone)
	}()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting HTTP server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down auction service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	stop()
	<-leaderDone

	log.Info("Auction service stopped")
}
