// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/plan2tasks/plan2tasks/internal/models"
)

// ErrDuplicate is returned (wrapped) by Create operations when a
// unique-constraint violation occurs. Callers use it to resolve
// concurrent-insert races by re-querying.
var ErrDuplicate = errors.New("duplicate row")

// Store is the main interface for database operations. It is constructed
// once per process and passed to each component; there is no package-level
// client singleton.
type Store interface {
	// Planners returns the PlannerStore for planner account operations.
	Planners() PlannerStore
	// Connections returns the ConnectionStore for OAuth credential records.
	Connections() ConnectionStore
	// Invites returns the InviteStore for invitation operations.
	Invites() InviteStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Planner represents a planner account.
type Planner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"created_at"`
}

// PlannerStore defines operations for planner account management.
type PlannerStore interface {
	// Create creates a new planner with a hashed password.
	Create(ctx context.Context, email, password string) (*Planner, error)
	// GetByEmail retrieves a planner by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Planner, error)
	// Authenticate verifies credentials and returns the planner.
	Authenticate(ctx context.Context, email, password string) (*Planner, error)
}

// ConnectionStore defines operations for OAuth connection records.
//
// Lookups compare emails case-insensitively. The canonical key is the
// (plannerEmail, userEmail) pair; lookups by user email alone exist only for
// the token refresh path, where the most-recently-updated row wins.
type ConnectionStore interface {
	// Upsert creates or replaces the connection row for the pair.
	// Token fields are written as given; callers are responsible for
	// carrying forward a refresh token the provider omitted.
	Upsert(ctx context.Context, conn *models.Connection) error
	// Get retrieves the connection for a (planner, user) pair.
	Get(ctx context.Context, plannerEmail, userEmail string) (*models.Connection, error)
	// GetLatestByUserEmail retrieves the most-recently-updated, non-deleted
	// connection for a user across all planners.
	GetLatestByUserEmail(ctx context.Context, userEmail string) (*models.Connection, error)
	// GetLatestConnectedByUserEmail retrieves the most-recently-updated
	// connection with status connected for a user. The access-token resolver
	// uses this so an archived row under another planner never shadows a
	// connected one.
	GetLatestConnectedByUserEmail(ctx context.Context, userEmail string) (*models.Connection, error)
	// UpdateTokens updates access token, token type, scope and expiry for a
	// single (planner, user) pair. The refresh token is untouched.
	UpdateTokens(ctx context.Context, plannerEmail, userEmail, accessToken, tokenType, scope string, expiry time.Time) error
	// SetStatus updates the lifecycle status for a pair.
	SetStatus(ctx context.Context, plannerEmail, userEmail string, status models.ConnectionStatus) error
	// Delete removes the connection row for a pair.
	Delete(ctx context.Context, plannerEmail, userEmail string) error
	// ListByPlanner retrieves all non-deleted connections for a planner.
	ListByPlanner(ctx context.Context, plannerEmail string) ([]*models.Connection, error)
}

// InviteStore defines operations for invitation management.
type InviteStore interface {
	// Create inserts a new invite. A unique-violation error is returned when
	// a pending invite already exists for the pair; callers resolve the race
	// by re-querying.
	Create(ctx context.Context, invite *models.Invite) error
	// GetByID retrieves an invite by its opaque id.
	GetByID(ctx context.Context, id string) (*models.Invite, error)
	// GetPendingByEmails retrieves the pending invite for a pair, if any.
	GetPendingByEmails(ctx context.Context, plannerEmail, userEmail string) (*models.Invite, error)
	// MarkUsed sets used_at to now if not already set. Idempotent: marking a
	// used or unknown invite is a no-op, not an error.
	MarkUsed(ctx context.Context, id string) error
	// DeletePending removes pending invites for a pair and returns the count.
	// Used invites are retained for audit.
	DeletePending(ctx context.Context, plannerEmail, userEmail string) (int64, error)
	// ListByPlanner retrieves all invites issued by a planner.
	ListByPlanner(ctx context.Context, plannerEmail string) ([]*models.Invite, error)
}
