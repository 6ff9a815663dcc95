package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plan2tasks/plan2tasks/internal/api/middleware"
	"github.com/plan2tasks/plan2tasks/internal/connect"
	"github.com/plan2tasks/plan2tasks/internal/models"
)

// InvitesHandler handles invitation HTTP requests.
type InvitesHandler struct {
	connect *connect.Service
	logger  *slog.Logger
}

// NewInvitesHandler creates a new invites handler.
func NewInvitesHandler(connectSvc *connect.Service, logger *slog.Logger) *InvitesHandler {
	return &InvitesHandler{
		connect: connectSvc,
		logger:  logger,
	}
}

// CreateInviteRequest represents the request body for creating an invite.
type CreateInviteRequest struct {
	UserEmail string `json:"user_email"`
}

// InviteResponse is an invite plus the authorization URL the invited user
// must visit to complete the connection.
type InviteResponse struct {
	Invite  *models.Invite `json:"invite"`
	AuthURL string         `json:"auth_url"`
}

// Create handles POST /v1/invites. Idempotent: a pending invite for the pair
// is returned instead of creating a second one.
func (h *InvitesHandler) Create(w http.ResponseWriter, r *http.Request) {
	plannerEmail := middleware.GetPlannerEmail(r.Context())

	var req CreateInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	invite, err := h.connect.CreateOrReuseInvite(r.Context(), plannerEmail, req.UserEmail)
	if err != nil {
		if connect.IsValidationError(err) {
			WriteBadRequest(w, err.Error())
			return
		}
		h.logger.Error("failed to create invite", "error", err)
		WriteInternalError(w, "failed to create invite")
		return
	}

	authURL, err := h.connect.AuthorizationURL(invite.UserEmail, invite.ID)
	if err != nil {
		h.logger.Error("failed to build authorization url", "error", err)
		WriteInternalError(w, "failed to build authorization url")
		return
	}

	WriteJSON(w, http.StatusCreated, &InviteResponse{Invite: invite, AuthURL: authURL})
}

// List handles GET /v1/invites - lists invites issued by the planner.
func (h *InvitesHandler) List(w http.ResponseWriter, r *http.Request) {
	plannerEmail := middleware.GetPlannerEmail(r.Context())

	invites, err := h.connect.ListInvites(r.Context(), plannerEmail)
	if err != nil {
		h.logger.Error("failed to list invites", "error", err)
		WriteInternalError(w, "failed to list invites")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

// UserStatus handles GET /v1/users/{email}/status - reports the connection
// state of a user from the planner's perspective.
func (h *InvitesHandler) UserStatus(w http.ResponseWriter, r *http.Request) {
	plannerEmail := middleware.GetPlannerEmail(r.Context())
	userEmail := chi.URLParam(r, "email")

	status, err := h.connect.UserStatus(r.Context(), plannerEmail, userEmail)
	if err != nil {
		if connect.IsValidationError(err) {
			WriteBadRequest(w, err.Error())
			return
		}
		h.logger.Error("failed to resolve user status", "error", err)
		WriteInternalError(w, "failed to resolve user status")
		return
	}

	WriteJSON(w, http.StatusOK, status)
}
