package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/plan2tasks/plan2tasks/internal/auth"
	"github.com/plan2tasks/plan2tasks/internal/connect"
	"github.com/plan2tasks/plan2tasks/internal/store"
)

// AuthHandler handles planner registration and login.
type AuthHandler struct {
	store       store.Store
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(st store.Store, authSvc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		store:       st,
		authService: authSvc,
		logger:      logger,
	}
}

// RegisterRequest represents the request body for planner registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned from both register and login.
type AuthResponse struct {
	Token   string         `json:"token"`
	Planner *store.Planner `json:"planner"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	email, err := connect.ValidateEmail(req.Email)
	if err != nil {
		WriteBadRequest(w, "invalid email address")
		return
	}
	if len(req.Password) < 8 {
		WriteBadRequest(w, "password must be at least 8 characters")
		return
	}

	planner, err := h.store.Planners().Create(r.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			WriteConflict(w, "email already registered")
			return
		}
		h.logger.Error("failed to create planner", "error", err)
		WriteInternalError(w, "failed to create account")
		return
	}

	token, err := h.authService.GenerateToken(planner.ID, planner.Email)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		WriteInternalError(w, "failed to generate token")
		return
	}

	WriteJSON(w, http.StatusCreated, &AuthResponse{Token: token, Planner: planner})
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteBadRequest(w, "email and password are required")
		return
	}

	planner, err := h.store.Planners().Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteUnauthorized(w, "invalid credentials")
		return
	}

	token, err := h.authService.GenerateToken(planner.ID, planner.Email)
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		WriteInternalError(w, "failed to generate token")
		return
	}

	WriteJSON(w, http.StatusOK, &AuthResponse{Token: token, Planner: planner})
}
