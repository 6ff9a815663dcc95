package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/plan2tasks/plan2tasks/internal/connect"
)

// TokensHandler handles operator-facing token maintenance requests.
type TokensHandler struct {
	connect *connect.Service
	logger  *slog.Logger
}

// NewTokensHandler creates a new tokens handler.
func NewTokensHandler(connectSvc *connect.Service, logger *slog.Logger) *TokensHandler {
	return &TokensHandler{
		connect: connectSvc,
		logger:  logger,
	}
}

// RefreshRequest represents the request body for a token refresh.
type RefreshRequest struct {
	UserEmail string `json:"user_email"`
	// DryRun performs the real provider exchange, validating the stored
	// refresh token, without persisting the result.
	DryRun bool `json:"dry_run"`
}

// RefreshResponse reports the outcome of a refresh. The access and refresh
// tokens themselves are never returned.
type RefreshResponse struct {
	UserEmail string    `json:"user_email"`
	TokenType string    `json:"token_type"`
	Scope     string    `json:"scope"`
	Expiry    time.Time `json:"expiry"`
	DryRun    bool      `json:"dry_run"`
}

// Refresh handles POST /v1/tokens/refresh.
func (h *TokensHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	result, err := h.connect.Refresh(r.Context(), req.UserEmail, req.DryRun)
	if err != nil {
		if pe, ok := connect.ProviderRejected(err); ok {
			// invalid_grant means the refresh token is revoked; the user
			// must re-consent. Surface the provider's diagnosis verbatim.
			WriteErrorWithDetails(w, http.StatusBadGateway, ErrCodeProviderRejected,
				"google rejected the refresh", map[string]any{
					"provider_error":       pe.Code,
					"provider_description": pe.Description,
					"reauth_required":      pe.InvalidGrant(),
				})
			return
		}
		switch {
		case connect.IsValidationError(err):
			WriteBadRequest(w, err.Error())
		case errors.Is(err, connect.ErrNotConnected):
			WriteError(w, http.StatusConflict, ErrCodeNotConnected, "user is not connected")
		case errors.Is(err, connect.ErrNoRefreshToken):
			WriteError(w, http.StatusConflict, ErrCodeNotConnected, "no refresh token stored; user must reconnect")
		default:
			h.logger.Error("token refresh failed", "user", req.UserEmail, "error", err)
			WriteInternalError(w, "token refresh failed")
		}
		return
	}

	WriteJSON(w, http.StatusOK, &RefreshResponse{
		UserEmail: req.UserEmail,
		TokenType: result.TokenType,
		Scope:     result.Scope,
		Expiry:    result.Expiry,
		DryRun:    result.DryRun,
	})
}
