package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plan2tasks/plan2tasks/internal/api/middleware"
	"github.com/plan2tasks/plan2tasks/internal/connect"
	"github.com/plan2tasks/plan2tasks/internal/models"
)

// ConnectionsHandler handles connection lifecycle HTTP requests. Connection
// records serialize without token material.
type ConnectionsHandler struct {
	connect *connect.Service
	logger  *slog.Logger
}

// NewConnectionsHandler creates a new connections handler.
func NewConnectionsHandler(connectSvc *connect.Service, logger *slog.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{
		connect: connectSvc,
		logger:  logger,
	}
}

// List handles GET /v1/connections - lists the planner's connections.
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	plannerEmail := middleware.GetPlannerEmail(r.Context())

	conns, err := h.connect.ListConnections(r.Context(), plannerEmail)
	if err != nil {
		h.logger.Error("failed to list connections", "error", err)
		WriteInternalError(w, "failed to list connections")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

// SetStatusRequest represents the request body for a status change.
type SetStatusRequest struct {
	Status models.ConnectionStatus `json:"status"`
}

// SetStatus handles PATCH /v1/connections/{email} - archive, restore, or
// soft-delete a connection.
func (h *ConnectionsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	plannerEmail := middleware.GetPlannerEmail(r.Context())
	userEmail := chi.URLParam(r, "email")

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	switch req.Status {
	case models.StatusArchived, models.StatusConnected, models.StatusDeleted:
	default:
		WriteBadRequest(w, "status must be archived, connected, or deleted")
		return
	}

	err := h.connect.SetConnectionStatus(r.Context(), plannerEmail, userEmail, req.Status)
	if err != nil {
		switch {
		case connect.IsValidationError(err):
			WriteBadRequest(w, err.Error())
		case errors.Is(err, connect.ErrNotConnected):
			WriteNotFound(w, "connection not found")
		case errors.Is(err, connect.ErrBadTransition):
			WriteConflict(w, err.Error())
		default:
			h.logger.Error("failed to update connection status", "error", err)
			WriteInternalError(w, "failed to update connection status")
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"user_email": userEmail,
		"status":     req.Status,
	})
}

// Delete handles DELETE /v1/connections/{email} - hard-removes the
// connection row and any pending invites for the pair.
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	plannerEmail := middleware.GetPlannerEmail(r.Context())
	userEmail := chi.URLParam(r, "email")

	removed, err := h.connect.PurgeUser(r.Context(), plannerEmail, userEmail)
	if err != nil {
		h.logger.Error("failed to purge user", "error", err)
		WriteInternalError(w, "failed to remove connection")
		return
	}

	h.logger.Info("connection removed",
		"planner_id", middleware.GetPlannerID(r.Context()),
		"user", userEmail,
		"invites_removed", removed,
	)

	WriteJSON(w, http.StatusOK, map[string]any{
		"user_email":      userEmail,
		"invites_removed": removed,
	})
}
