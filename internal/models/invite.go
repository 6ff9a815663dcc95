package models

import "time"

// Invite represents a planner-initiated permission for a user to begin the
// OAuth flow. The ID is an opaque token carried through the OAuth state
// parameter; it is the trust anchor resolved on callback.
//
// An Invite is immutable except for UsedAt, which transitions nil -> non-nil
// exactly once. Used invites are retained for audit; only pending ones are
// actionable.
type Invite struct {
	ID           string     `json:"id"`
	PlannerEmail string     `json:"planner_email"`
	UserEmail    string     `json:"user_email"`
	CreatedAt    time.Time  `json:"created_at"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
}

// IsPending reports whether the invite has not yet been consumed.
func (i *Invite) IsPending() bool {
	return i.UsedAt == nil
}
