package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plan2tasks/plan2tasks/internal/models"
)

// InviteStore implements store.InviteStore using PostgreSQL.
//
// A partial unique index on (LOWER(planner_email), LOWER(user_email)) WHERE
// used_at IS NULL guarantees at most one pending invite per pair; concurrent
// creates surface as store.ErrDuplicate for the caller to resolve.
type InviteStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *InviteStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create inserts a new invite.
func (s *InviteStore) Create(ctx context.Context, invite *models.Invite) error {
	if invite.ID == "" {
		invite.ID = uuid.New().String()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO invites (id, planner_email, user_email, created_at, used_at)
		VALUES ($1, $2, $3, $4, NULL)
	`

	_, err := s.conn().ExecContext(ctx, query,
		invite.ID, invite.PlannerEmail, invite.UserEmail, invite.CreatedAt,
	)
	return wrapDuplicate(err)
}

// GetByID retrieves an invite by its opaque id.
func (s *InviteStore) GetByID(ctx context.Context, id string) (*models.Invite, error) {
	query := `
		SELECT id, planner_email, user_email, created_at, used_at
		FROM invites WHERE id = $1
	`
	return s.scanOne(s.conn().QueryRowContext(ctx, query, id))
}

// GetPendingByEmails retrieves the pending invite for a pair, if any.
func (s *InviteStore) GetPendingByEmails(ctx context.Context, plannerEmail, userEmail string) (*models.Invite, error) {
	query := `
		SELECT id, planner_email, user_email, created_at, used_at
		FROM invites
		WHERE LOWER(planner_email) = $1 AND LOWER(user_email) = $2 AND used_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.scanOne(s.conn().QueryRowContext(ctx, query,
		models.NormalizeEmail(plannerEmail), models.NormalizeEmail(userEmail)))
}

// MarkUsed sets used_at if not already set. The WHERE guard makes re-marking
// a used invite, or marking an unknown id, a no-op rather than an error.
func (s *InviteStore) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE invites SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	_, err := s.conn().ExecContext(ctx, query, time.Now(), id)
	return err
}

// DeletePending removes pending invites for a pair and returns the count.
func (s *InviteStore) DeletePending(ctx context.Context, plannerEmail, userEmail string) (int64, error) {
	query := `
		DELETE FROM invites
		WHERE LOWER(planner_email) = $1 AND LOWER(user_email) = $2 AND used_at IS NULL
	`
	res, err := s.conn().ExecContext(ctx, query,
		models.NormalizeEmail(plannerEmail), models.NormalizeEmail(userEmail))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByPlanner retrieves all invites issued by a planner.
func (s *InviteStore) ListByPlanner(ctx context.Context, plannerEmail string) ([]*models.Invite, error) {
	query := `
		SELECT id, planner_email, user_email, created_at, used_at
		FROM invites
		WHERE LOWER(planner_email) = $1
		ORDER BY created_at DESC
	`
	rows, err := s.conn().QueryContext(ctx, query, models.NormalizeEmail(plannerEmail))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []*models.Invite
	for rows.Next() {
		var inv models.Invite
		var usedAt sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.PlannerEmail, &inv.UserEmail, &inv.CreatedAt, &usedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			inv.UsedAt = &usedAt.Time
		}
		invites = append(invites, &inv)
	}

	return invites, rows.Err()
}

func (s *InviteStore) scanOne(row *sql.Row) (*models.Invite, error) {
	var inv models.Invite
	var usedAt sql.NullTime

	err := row.Scan(&inv.ID, &inv.PlannerEmail, &inv.UserEmail, &inv.CreatedAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if usedAt.Valid {
		inv.UsedAt = &usedAt.Time
	}

	return &inv, nil
}
