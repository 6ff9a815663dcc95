package handlers

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/plan2tasks/plan2tasks/internal/connect"
)

// OAuthHandler handles the browser-facing half of the Google consent flow.
// These endpoints are unauthenticated: the invited user has no planner
// session. Responses are HTML pages and never contain token material.
type OAuthHandler struct {
	connect *connect.Service
	logger  *slog.Logger
}

// NewOAuthHandler creates a new OAuth handler.
func NewOAuthHandler(connectSvc *connect.Service, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		connect: connectSvc,
		logger:  logger,
	}
}

// Start handles GET /oauth/start - redirects the user to Google's consent
// screen. invite_id is optional; without it the callback can only be
// attributed to an already-connected user.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	userEmail := r.URL.Query().Get("user_email")
	inviteID := r.URL.Query().Get("invite_id")

	authURL, err := h.connect.AuthorizationURL(userEmail, inviteID)
	if err != nil {
		writeHTMLPage(w, http.StatusBadRequest, "Connection failed",
			"The connection link is invalid. Ask your planner to send a new invite.")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /oauth/callback - the redirect back from Google.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// The user declined consent, or Google rejected the request outright.
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("oauth consent denied", "provider_error", errCode)
		writeHTMLPage(w, http.StatusBadRequest, "Connection not completed",
			"Google did not authorize the connection. You can retry from your invite link.")
		return
	}

	result, err := h.connect.HandleCallback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		switch {
		case errors.Is(err, connect.ErrMissingCode):
			writeHTMLPage(w, http.StatusBadRequest, "Connection not completed",
				"The authorization response was incomplete. You can retry from your invite link.")
		case errors.Is(err, connect.ErrUnattributed):
			writeHTMLPage(w, http.StatusBadRequest, "Connection not completed",
				"We could not match this authorization to an invite. Ask your planner for a new invite link.")
		case errors.Is(err, connect.ErrNoRefreshIssued):
			writeHTMLPage(w, http.StatusBadRequest, "Connection not completed",
				"Google did not grant offline access. Remove the app from your Google account permissions and retry.")
		default:
			h.logger.Error("oauth callback failed", "error", err)
			writeHTMLPage(w, http.StatusInternalServerError, "Connection failed",
				"Something went wrong completing the connection. Please retry from your invite link.")
		}
		return
	}

	writeHTMLPage(w, http.StatusOK, "Connected",
		fmt.Sprintf("Your Google Tasks account is now connected to planner %s. You can close this window.",
			html.EscapeString(result.PlannerEmail)))
}

// writeHTMLPage renders a minimal standalone status page for the invited
// user's browser.
func writeHTMLPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; max-width: 40rem; margin: 4rem auto;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, html.EscapeString(title), html.EscapeString(title), message)
}
