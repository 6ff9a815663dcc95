// Package connect implements the OAuth connection lifecycle: invite
// issuance, callback commit, token refresh, and access-token resolution.
// It is the only writer of credential material in the system.
package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/plan2tasks/plan2tasks/internal/google"
	"github.com/plan2tasks/plan2tasks/internal/models"
	"github.com/plan2tasks/plan2tasks/internal/store"
)

// expirySkew is the safety margin under which a cached access token is
// treated as already expired.
const expirySkew = 60 * time.Second

// OAuthClient is the provider surface the service depends on.
type OAuthClient interface {
	// AuthCodeURL builds the authorization-request URL for the given state.
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (*google.Token, error)
	// Refresh obtains a fresh access token for a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*google.Token, error)
}

// Service coordinates the invite/OAuth/token state machine over the store
// and the provider client. Handlers stay thin; all lifecycle rules live here.
type Service struct {
	store  store.Store
	google OAuthClient
	logger *slog.Logger
}

// NewService creates a connection service.
func NewService(st store.Store, oauthClient OAuthClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		google: oauthClient,
		logger: logger.With("component", "connect"),
	}
}

// ValidateEmail checks that the address is syntactically plausible and
// returns its trimmed form.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CreateOrReuseInvite returns the pending invite for the pair, creating one
// if none exists. Idempotent: two live invite links are never issued for the
// same pending pair. A concurrent-insert race is resolved by re-querying
// after a unique violation rather than erroring.
func (s *Service) CreateOrReuseInvite(ctx context.Context, plannerEmail, userEmail string) (*models.Invite, error) {
	plannerEmail, err := ValidateEmail(plannerEmail)
	if err != nil {
		return nil, fmt.Errorf("planner email: %w", err)
	}
	userEmail, err = ValidateEmail(userEmail)
	if err != nil {
		return nil, fmt.Errorf("user email: %w", err)
	}

	existing, err := s.store.Invites().GetPendingByEmails(ctx, plannerEmail, userEmail)
	if err != nil {
		return nil, fmt.Errorf("looking up pending invite: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	invite := &models.Invite{
		PlannerEmail: plannerEmail,
		UserEmail:    userEmail,
	}
	err = s.store.Invites().Create(ctx, invite)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost the race: another request created the pending invite first.
		winner, qErr := s.store.Invites().GetPendingByEmails(ctx, plannerEmail, userEmail)
		if qErr != nil {
			return nil, fmt.Errorf("resolving invite race: %w", qErr)
		}
		if winner != nil {
			return winner, nil
		}
		return nil, fmt.Errorf("creating invite: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}

	s.logger.Info("invite created",
		"invite_id", invite.ID,
		"planner", models.NormalizeEmail(plannerEmail),
		"user", models.NormalizeEmail(userEmail),
	)
	return invite, nil
}

// MarkInviteUsed marks an invite consumed. Idempotent.
func (s *Service) MarkInviteUsed(ctx context.Context, inviteID string) error {
	return s.store.Invites().MarkUsed(ctx, inviteID)
}

// AuthorizationURL builds the provider authorization URL for a user,
// embedding the invite id in the state when the flow starts from an invite.
// Read-only: the store is not touched.
func (s *Service) AuthorizationURL(userEmail, inviteID string) (string, error) {
	userEmail, err := ValidateEmail(userEmail)
	if err != nil {
		return "", err
	}
	state := google.EncodeState(google.State{
		UserEmail: userEmail,
		InviteID:  inviteID,
	})
	return s.google.AuthCodeURL(state), nil
}

// CallbackResult reports which pair a completed callback was committed to.
type CallbackResult struct {
	PlannerEmail string
	UserEmail    string
}

// HandleCallback runs the callback state machine: decode state, exchange the
// code, resolve the (planner, user) pair, commit the connection, and mark the
// invite used. Failures before the commit leave the store untouched.
func (s *Service) HandleCallback(ctx context.Context, code, rawState string) (*CallbackResult, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	// Best-effort: an undecodable state degrades to "no invite context".
	state := google.DecodeState(rawState)

	tok, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	plannerEmail, userEmail, invite, err := s.resolveIdentity(ctx, state)
	if err != nil {
		// The provider has issued tokens we cannot attribute. Nothing is
		// persisted; the flow must be re-initiated from an invite.
		s.logger.Warn("oauth callback could not be attributed",
			"state_user", models.NormalizeEmail(state.UserEmail),
			"state_invite", state.InviteID,
		)
		return nil, err
	}

	if err := s.commit(ctx, plannerEmail, userEmail, tok); err != nil {
		return nil, err
	}

	if invite != nil {
		if err := s.store.Invites().MarkUsed(ctx, invite.ID); err != nil {
			// The connection is committed; a failed invite update only
			// leaves a stale pending row behind.
			s.logger.Error("failed to mark invite used", "invite_id", invite.ID, "error", err)
		}
	}

	s.logger.Info("connection established",
		"planner", models.NormalizeEmail(plannerEmail),
		"user", models.NormalizeEmail(userEmail),
	)
	return &CallbackResult{PlannerEmail: plannerEmail, UserEmail: userEmail}, nil
}

// resolveIdentity determines the authoritative (planner, user) pair for a
// callback. The invite row is the trust anchor and takes precedence over the
// email embedded in state; without an invite, an existing connection for the
// state email is the fallback.
func (s *Service) resolveIdentity(ctx context.Context, state google.State) (string, string, *models.Invite, error) {
	if state.InviteID != "" {
		invite, err := s.store.Invites().GetByID(ctx, state.InviteID)
		if err != nil {
			return "", "", nil, fmt.Errorf("looking up invite: %w", err)
		}
		if invite != nil {
			return invite.PlannerEmail, invite.UserEmail, invite, nil
		}
	}

	if state.UserEmail != "" {
		existing, err := s.store.Connections().GetLatestByUserEmail(ctx, state.UserEmail)
		if err != nil {
			return "", "", nil, fmt.Errorf("looking up connection: %w", err)
		}
		if existing != nil {
			return existing.PlannerEmail, existing.UserEmail, nil, nil
		}
	}

	return "", "", nil, ErrUnattributed
}

// commit upserts the connection for the pair. A refresh token the provider
// omitted (repeat consent) is carried forward from the stored row.
func (s *Service) commit(ctx context.Context, plannerEmail, userEmail string, tok *google.Token) error {
	existing, err := s.store.Connections().Get(ctx, plannerEmail, userEmail)
	if err != nil {
		return s.commitFailed(plannerEmail, userEmail, fmt.Errorf("loading existing connection: %w", err))
	}

	refreshToken := tok.RefreshToken
	if refreshToken == "" && existing != nil {
		refreshToken = existing.RefreshToken
	}
	if refreshToken == "" {
		return ErrNoRefreshIssued
	}

	conn := &models.Connection{
		PlannerEmail: plannerEmail,
		UserEmail:    userEmail,
		Provider:     models.ProviderGoogle,
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		Scope:        tok.Scope,
		TokenType:    tok.TokenType,
		TokenExpiry:  tok.Expiry,
		Status:       models.StatusConnected,
	}
	if err := s.store.Connections().Upsert(ctx, conn); err != nil {
		return s.commitFailed(plannerEmail, userEmail, err)
	}
	return nil
}

// commitFailed logs the orphaned-tokens condition as its own error class so
// telemetry can distinguish it from an exchange failure. Token values are
// never logged.
func (s *Service) commitFailed(plannerEmail, userEmail string, err error) error {
	s.logger.Error("token commit failed after successful exchange",
		"error_class", "token_commit_failed",
		"planner", models.NormalizeEmail(plannerEmail),
		"user", models.NormalizeEmail(userEmail),
		"error", err,
	)
	return fmt.Errorf("%w: %v", ErrCommitFailed, err)
}

// RefreshResult is what a refresh wrote, or would write in dry-run mode.
// The refresh token itself is never part of the result.
type RefreshResult struct {
	AccessToken string    `json:"-"`
	TokenType   string    `json:"token_type"`
	Scope       string    `json:"scope"`
	Expiry      time.Time `json:"expiry"`
	DryRun      bool      `json:"dry_run"`
}

// Refresh obtains a fresh access token for the user's stored refresh token.
// With dryRun the network exchange still happens (validating the refresh
// token) but nothing is persisted. When a user holds rows under multiple
// planners, the most-recently-updated one selects the refresh token, and
// persistence targets that row alone.
func (s *Service) Refresh(ctx context.Context, userEmail string, dryRun bool) (*RefreshResult, error) {
	userEmail, err := ValidateEmail(userEmail)
	if err != nil {
		return nil, err
	}

	conn, err := s.store.Connections().GetLatestByUserEmail(ctx, userEmail)
	if err != nil {
		return nil, fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		return nil, ErrNotConnected
	}

	return s.refreshConnection(ctx, conn, dryRun)
}

// refreshConnection exchanges the row's refresh token and, unless dryRun,
// writes the new access token back to that same (planner, user) row. Other
// rows the user may hold are never touched.
func (s *Service) refreshConnection(ctx context.Context, conn *models.Connection, dryRun bool) (*RefreshResult, error) {
	if conn.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	tok, err := s.google.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	scope := tok.Scope
	if scope == "" {
		scope = conn.Scope
	}
	result := &RefreshResult{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       scope,
		Expiry:      tok.Expiry,
		DryRun:      dryRun,
	}

	if dryRun {
		return result, nil
	}

	err = s.store.Connections().UpdateTokens(ctx,
		conn.PlannerEmail, conn.UserEmail, tok.AccessToken, tok.TokenType, scope, tok.Expiry)
	if err != nil {
		return nil, fmt.Errorf("persisting refreshed token: %w", err)
	}
	return result, nil
}

// ValidAccessToken returns a currently valid access token for the user,
// refreshing transparently when the cached token is expired or within the
// safety margin of expiry. This is the single chokepoint through which task
// delivery obtains credentials. Only connected rows are considered, so an
// archived row under another planner never hides a usable connection.
func (s *Service) ValidAccessToken(ctx context.Context, userEmail string) (string, error) {
	userEmail, err := ValidateEmail(userEmail)
	if err != nil {
		return "", err
	}

	conn, err := s.store.Connections().GetLatestConnectedByUserEmail(ctx, userEmail)
	if err != nil {
		return "", fmt.Errorf("loading connection: %w", err)
	}
	if conn == nil {
		return "", ErrNotConnected
	}

	if conn.TokenValid(time.Now(), expirySkew) {
		return conn.AccessToken, nil
	}

	result, err := s.refreshConnection(ctx, conn, false)
	if err != nil {
		return "", err
	}
	return result.AccessToken, nil
}

// PurgeUser removes the connection and any pending invites for the pair in
// one transaction. Used invites are retained for audit. Returns the number
// of pending invites removed.
func (s *Service) PurgeUser(ctx context.Context, plannerEmail, userEmail string) (int64, error) {
	var removed int64
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Connections().Delete(ctx, plannerEmail, userEmail); err != nil {
			return fmt.Errorf("deleting connection: %w", err)
		}
		n, err := tx.Invites().DeletePending(ctx, plannerEmail, userEmail)
		if err != nil {
			return fmt.Errorf("deleting pending invites: %w", err)
		}
		removed = n
		return nil
	})
	return removed, err
}
