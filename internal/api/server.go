// Package api provides the HTTP API server for the Plan2Tasks backend.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/plan2tasks/plan2tasks/internal/api/handlers"
	"github.com/plan2tasks/plan2tasks/internal/api/health"
	"github.com/plan2tasks/plan2tasks/internal/api/middleware"
	"github.com/plan2tasks/plan2tasks/internal/auth"
	"github.com/plan2tasks/plan2tasks/internal/connect"
	"github.com/plan2tasks/plan2tasks/internal/delivery"
	"github.com/plan2tasks/plan2tasks/internal/store"
	"github.com/plan2tasks/plan2tasks/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         store.Store
	auth          *auth.Service
	connect       *connect.Service
	delivery      *delivery.Service
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, st store.Store, authSvc *auth.Service, connectSvc *connect.Service, deliverySvc *delivery.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:    st,
		auth:     authSvc,
		connect:  connectSvc,
		delivery: deliverySvc,
		config:   cfg,
		logger:   logger,
	}

	s.healthChecker = health.NewChecker(st, Version)

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Health check endpoint (no auth required)
	r.Get("/health", s.healthChecker.Handler())

	// Auth routes (no auth required)
	authHandler := handlers.NewAuthHandler(s.store, s.auth, s.logger)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// Google consent flow (public; the invited user has no session)
	oauthHandler := handlers.NewOAuthHandler(s.connect, s.logger)
	r.Get("/oauth/start", oauthHandler.Start)
	r.Get("/oauth/callback", oauthHandler.Callback)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(s.auth, s.logger))

		invitesHandler := handlers.NewInvitesHandler(s.connect, s.logger)
		r.Post("/invites", invitesHandler.Create)
		r.Get("/invites", invitesHandler.List)
		r.Get("/users/{email}/status", invitesHandler.UserStatus)

		connectionsHandler := handlers.NewConnectionsHandler(s.connect, s.logger)
		r.Get("/connections", connectionsHandler.List)
		r.Patch("/connections/{email}", connectionsHandler.SetStatus)
		r.Delete("/connections/{email}", connectionsHandler.Delete)

		tokensHandler := handlers.NewTokensHandler(s.connect, s.logger)
		r.Post("/tokens/refresh", tokensHandler.Refresh)

		pushHandler := handlers.NewPushHandler(s.delivery, s.logger)
		r.Post("/push", pushHandler.Push)
	})

	s.router = r
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the underlying router, used in tests.
func (s *Server) Router() chi.Router {
	return s.router
}
