package middleware

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/plan2tasks/plan2tasks/internal/api/errors"
	"github.com/plan2tasks/plan2tasks/internal/auth"
)

type contextKey string

const (
	plannerIDKey    contextKey = "planner_id"
	plannerEmailKey contextKey = "planner_email"
)

// Authenticator validates planner session tokens.
type Authenticator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// Auth returns a middleware that requires a valid Bearer token and stores
// the planner identity in the request context.
func Auth(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				apierrors.WriteError(w, apierrors.NewUnauthorizedError("missing authorization token"))
				return
			}

			claims, err := authenticator.ValidateToken(token)
			if err != nil {
				logger.Debug("token validation failed", "error", err)
				apierrors.WriteError(w, apierrors.NewUnauthorizedError("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), plannerIDKey, claims.PlannerID)
			ctx = context.WithValue(ctx, plannerEmailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPlannerID returns the authenticated planner's id from the context.
func GetPlannerID(ctx context.Context) string {
	id, _ := ctx.Value(plannerIDKey).(string)
	return id
}

// GetPlannerEmail returns the authenticated planner's email from the context.
func GetPlannerEmail(ctx context.Context) string {
	email, _ := ctx.Value(plannerEmailKey).(string)
	return email
}
