package connect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plan2tasks/plan2tasks/internal/models"
)

// ErrBadTransition is returned for an illegal status change, such as
// restoring a deleted connection.
var ErrBadTransition = errors.New("illegal status transition")

// IsValidationError reports whether err is a caller mistake rather than a
// system failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEmail)
}

// UserStatus is the planner-facing view of where a user sits in the
// connection lifecycle. Token material is never included.
type UserStatus struct {
	UserEmail     string                  `json:"user_email"`
	Status        models.ConnectionStatus `json:"status"`
	InvitePending bool                    `json:"invite_pending"`
	TokenExpiry   *time.Time              `json:"token_expiry,omitempty"`
}

// StatusNone is reported when neither a connection nor a pending invite
// exists for the pair.
const StatusNone models.ConnectionStatus = "none"

// UserStatus reports the lifecycle state of a user from a planner's
// perspective: the stored connection status if one exists, otherwise whether
// an invite is still pending.
func (s *Service) UserStatus(ctx context.Context, plannerEmail, userEmail string) (*UserStatus, error) {
	plannerEmail, err := ValidateEmail(plannerEmail)
	if err != nil {
		return nil, fmt.Errorf("planner email: %w", err)
	}
	userEmail, err = ValidateEmail(userEmail)
	if err != nil {
		return nil, fmt.Errorf("user email: %w", err)
	}

	status := &UserStatus{UserEmail: userEmail, Status: StatusNone}

	invite, err := s.store.Invites().GetPendingByEmails(ctx, plannerEmail, userEmail)
	if err != nil {
		return nil, fmt.Errorf("looking up pending invite: %w", err)
	}
	status.InvitePending = invite != nil

	conn, err := s.store.Connections().Get(ctx, plannerEmail, userEmail)
	if err != nil {
		return nil, fmt.Errorf("looking up connection: %w", err)
	}
	if conn != nil {
		status.Status = conn.Status
		if !conn.TokenExpiry.IsZero() {
			expiry := conn.TokenExpiry
			status.TokenExpiry = &expiry
		}
	} else if status.InvitePending {
		status.Status = models.StatusInvited
	}

	return status, nil
}

// ListInvites returns all invites issued by a planner.
func (s *Service) ListInvites(ctx context.Context, plannerEmail string) ([]*models.Invite, error) {
	plannerEmail, err := ValidateEmail(plannerEmail)
	if err != nil {
		return nil, err
	}
	return s.store.Invites().ListByPlanner(ctx, plannerEmail)
}

// ListConnections returns all non-deleted connections for a planner.
func (s *Service) ListConnections(ctx context.Context, plannerEmail string) ([]*models.Connection, error) {
	plannerEmail, err := ValidateEmail(plannerEmail)
	if err != nil {
		return nil, err
	}
	return s.store.Connections().ListByPlanner(ctx, plannerEmail)
}

// SetConnectionStatus applies a planner-initiated lifecycle change (archive,
// restore, soft-delete) after checking the transition is legal.
func (s *Service) SetConnectionStatus(ctx context.Context, plannerEmail, userEmail string, to models.ConnectionStatus) error {
	plannerEmail, err := ValidateEmail(plannerEmail)
	if err != nil {
		return fmt.Errorf("planner email: %w", err)
	}
	userEmail, err = ValidateEmail(userEmail)
	if err != nil {
		return fmt.Errorf("user email: %w", err)
	}

	conn, err := s.store.Connections().Get(ctx, plannerEmail, userEmail)
	if err != nil {
		return fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		return ErrNotConnected
	}
	if !conn.CanTransition(to) {
		return fmt.Errorf("%w: %s to %s", ErrBadTransition, conn.Status, to)
	}

	if err := s.store.Connections().SetStatus(ctx, plannerEmail, userEmail, to); err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	s.logger.Info("connection status changed",
		"planner", models.NormalizeEmail(plannerEmail),
		"user", models.NormalizeEmail(userEmail),
		"status", to,
	)
	return nil
}
