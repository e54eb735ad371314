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
	"bidding-engine/internal/api/middleware"
	"bidding-engine/internal/bootstrap"
	"bidding-engine/internal/config"
	"bidding-engine/internal/infrastructure/websocket"
	"bidding-engine/internal/services"
	"bidding-engine/pkg/clock"
	"bidding-engine/pkg/logger"

	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting bidding service", "config", cfg.GetConfigString())
	for _, warning := range bootstrap.IsolationWarnings(cfg) {
		log.Warn("Bidding service is isolated from the auction service", "reason", warning)
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

	// Closing auctions is left to the auction service, so the scheduler is not started here.
	engine, _, _ := components.Engine(cfg, clock.System())

	connManager := websocket.NewConnectionManager(log)
	notifier := websocket.NewWebSocketNotifier(connManager)
	eventListener := services.NewEventListener(connManager, notifier, notifier, log)

	router := mux.NewRouter()
	router.Use(middleware.CORSWithLogging(log))
	router.Use(middleware.HTTPIdentity(middleware.NewAuthenticator(cfg.Auth.JWTSecret), log))

	handlers.NewWebSocketHandlers(engine, connManager, log).Register(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := eventListener.Start(ctx, components.Subscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener stopped", "error", err)
			stop()
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting HTTP server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	log.Info("Shutting down bidding service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	stop()
	<-listenerDone

	log.Info("Bidding service stopped")
}
