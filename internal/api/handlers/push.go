package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/plan2tasks/plan2tasks/internal/connect"
	"github.com/plan2tasks/plan2tasks/internal/delivery"
	"github.com/plan2tasks/plan2tasks/internal/models"
)

// PushHandler handles plan delivery requests.
type PushHandler struct {
	delivery *delivery.Service
	logger   *slog.Logger
}

// NewPushHandler creates a new push handler.
func NewPushHandler(deliverySvc *delivery.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{
		delivery: deliverySvc,
		logger:   logger,
	}
}

// PushRequest represents the request body for pushing a plan.
type PushRequest struct {
	UserEmails []string    `json:"user_emails"`
	Plan       models.Plan `json:"plan"`
}

// Push handles POST /v1/push - delivers a plan to one or more users.
func (h *PushHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	if len(req.UserEmails) == 0 {
		WriteBadRequest(w, "at least one user email is required")
		return
	}
	if req.Plan.ListTitle == "" {
		WriteBadRequest(w, "plan list_title is required")
		return
	}
	if len(req.Plan.Tasks) == 0 {
		WriteBadRequest(w, "plan has no tasks")
		return
	}

	if len(req.UserEmails) == 1 {
		n, err := h.delivery.Push(r.Context(), req.UserEmails[0], req.Plan)
		if err != nil {
			h.writePushError(w, req.UserEmails[0], err)
			return
		}
		WriteJSON(w, http.StatusOK, &delivery.BatchResult{
			Total:      1,
			Successful: 1,
			Results: []delivery.Result{
				{UserEmail: req.UserEmails[0], Status: "success", Tasks: n},
			},
		})
		return
	}

	result := h.delivery.PushAll(r.Context(), req.UserEmails, req.Plan)
	// Partial failure is still a 200; per-user outcomes are in the body.
	WriteJSON(w, http.StatusOK, result)
}

func (h *PushHandler) writePushError(w http.ResponseWriter, userEmail string, err error) {
	if pe, ok := connect.ProviderRejected(err); ok {
		WriteErrorWithDetails(w, http.StatusBadGateway, ErrCodeProviderRejected,
			"google rejected the delivery", map[string]any{
				"provider_error":  pe.Code,
				"reauth_required": pe.InvalidGrant(),
			})
		return
	}
	switch {
	case errors.Is(err, connect.ErrNotConnected), errors.Is(err, connect.ErrNoRefreshToken):
		WriteError(w, http.StatusConflict, ErrCodeNotConnected, "user is not connected")
	case connect.IsValidationError(err):
		WriteBadRequest(w, err.Error())
	default:
		h.logger.Error("push failed", "user", userEmail, "error", err)
		WriteInternalError(w, "push failed")
	}
}
