// Package models provides data structures for the Plan2Tasks platform.
package models

import (
	"strings"
	"time"
)

// ProviderGoogle is the only OAuth provider currently supported.
const ProviderGoogle = "google"

// ConnectionStatus represents the lifecycle state of a planner/user connection.
type ConnectionStatus string

const (
	// StatusInvited indicates an invite exists but OAuth consent has not completed.
	StatusInvited ConnectionStatus = "invited"
	// StatusConnected indicates a completed OAuth consent with a stored refresh token.
	StatusConnected ConnectionStatus = "connected"
	// StatusArchived indicates the planner hid the connection; it can be restored.
	StatusArchived ConnectionStatus = "archived"
	// StatusDeleted is terminal; the connection is hidden from all listings.
	StatusDeleted ConnectionStatus = "deleted"
)

// Connection is the persisted OAuth credential and status record for one
// (planner, user) pair. One user may hold independent connections to
// multiple planners; the pair is the canonical key.
type Connection struct {
	PlannerEmail string           `json:"planner_email"`
	UserEmail    string           `json:"user_email"`
	Provider     string           `json:"provider"`
	AccessToken  string           `json:"-"`
	RefreshToken string           `json:"-"`
	Scope        string           `json:"scope,omitempty"`
	TokenType    string           `json:"-"`
	TokenExpiry  time.Time        `json:"-"`
	Status       ConnectionStatus `json:"status"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email for case-insensitive identity
// comparison. Rows keep whatever case was first written; comparison and
// lookup always go through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TokenValid reports whether the cached access token can still be used at
// instant now, keeping a safety margin before the recorded expiry.
func (c *Connection) TokenValid(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" || c.TokenExpiry.IsZero() {
		return false
	}
	return c.TokenExpiry.After(now.Add(margin))
}

// CanTransition reports whether a planner-initiated status change is legal.
// Archived and connected toggle freely; deleted is terminal.
func (c *Connection) CanTransition(to ConnectionStatus) bool {
	if c.Status == StatusDeleted {
		return false
	}
	switch to {
	case StatusArchived:
		return c.Status == StatusConnected
	case StatusConnected:
		return c.Status == StatusArchived
	case StatusDeleted:
		return true
	default:
		return false
	}
}
