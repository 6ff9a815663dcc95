// Package main provides the entry point for the API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/plan2tasks/plan2tasks/internal/api"
	"github.com/plan2tasks/plan2tasks/internal/auth"
	"github.com/plan2tasks/plan2tasks/internal/connect"
	"github.com/plan2tasks/plan2tasks/internal/delivery"
	"github.com/plan2tasks/plan2tasks/internal/google"
	pgstore "github.com/plan2tasks/plan2tasks/internal/store/postgres"
	"github.com/plan2tasks/plan2tasks/pkg/config"
	"github.com/plan2tasks/plan2tasks/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New(slog.LevelInfo, true)

	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database store
	storeCfg := pgstore.DefaultConfig(cfg.DatabaseDSN)
	store, err := pgstore.NewPostgresStore(storeCfg, log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize auth service
	authCfg := &auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}
	authService := auth.NewService(authCfg, log.Logger)

	// Initialize the Google OAuth client and connection service
	googleClient := google.NewClient(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURI:  cfg.Google.RedirectURI,
		Timeout:      cfg.Google.Timeout,
	}, log.Logger)
	connectService := connect.NewService(store, googleClient, log.Logger)

	// Initialize task delivery
	deliveryService := delivery.NewService(connectService, cfg.Push.MaxConcurrency, log.Logger)

	// Create the API server
	server := api.NewServer(cfg, store, authService, connectService, deliveryService, log.Logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Start the server
	log.Info("starting API server",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
	)

	if err := server.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	// Give time for graceful shutdown
	time.Sleep(100 * time.Millisecond)
	log.Info("server stopped")
}
