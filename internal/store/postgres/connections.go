package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/plan2tasks/plan2tasks/internal/models"
)

// ConnectionStore implements store.ConnectionStore using PostgreSQL.
//
// Email comparisons use LOWER() so rows keep the case they were first
// written with; callers pass already-normalized values. Expiry is stored as
// epoch seconds, the single canonical representation.
type ConnectionStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *ConnectionStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const connectionColumns = `planner_email, user_email, provider, access_token, refresh_token, scope, token_type, token_expiry, status, updated_at`

// Upsert creates or replaces the connection row for the (planner, user) pair.
// The conflict target is the expression index on the lowercased pair.
func (s *ConnectionStore) Upsert(ctx context.Context, conn *models.Connection) error {
	if conn.Provider == "" {
		conn.Provider = models.ProviderGoogle
	}
	now := time.Now()
	var expiry int64
	if !conn.TokenExpiry.IsZero() {
		expiry = conn.TokenExpiry.Unix()
	}

	query := `
		INSERT INTO connections (planner_email, user_email, provider, access_token, refresh_token, scope, token_type, token_expiry, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (LOWER(planner_email), LOWER(user_email)) DO UPDATE SET
			provider = EXCLUDED.provider,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scope = EXCLUDED.scope,
			token_type = EXCLUDED.token_type,
			token_expiry = EXCLUDED.token_expiry,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.conn().ExecContext(ctx, query,
		conn.PlannerEmail, conn.UserEmail, conn.Provider,
		conn.AccessToken, conn.RefreshToken, conn.Scope, conn.TokenType,
		expiry, string(conn.Status), now.Unix(),
	)
	if err == nil {
		conn.UpdatedAt = now
	}
	return err
}

// Get retrieves the connection for a (planner, user) pair.
func (s *ConnectionStore) Get(ctx context.Context, plannerEmail, userEmail string) (*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE LOWER(planner_email) = $1 AND LOWER(user_email) = $2
	`
	return s.scanOne(s.conn().QueryRowContext(ctx, query,
		models.NormalizeEmail(plannerEmail), models.NormalizeEmail(userEmail)))
}

// GetLatestByUserEmail retrieves the most-recently-updated, non-deleted
// connection for a user. Selection is deterministic: updated_at wins, with
// planner_email as the tiebreaker.
func (s *ConnectionStore) GetLatestByUserEmail(ctx context.Context, userEmail string) (*models.Connection, error) {
	return s.latestByUserEmail(ctx, userEmail, `status <> 'deleted'`)
}

// GetLatestConnectedByUserEmail retrieves the most-recently-updated connected
// row for a user. Archived rows under other planners are invisible here.
func (s *ConnectionStore) GetLatestConnectedByUserEmail(ctx context.Context, userEmail string) (*models.Connection, error) {
	return s.latestByUserEmail(ctx, userEmail, `status = 'connected'`)
}

func (s *ConnectionStore) latestByUserEmail(ctx context.Context, userEmail, statusPredicate string) (*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE LOWER(user_email) = $1 AND ` + statusPredicate + `
		ORDER BY updated_at DESC, planner_email ASC
		LIMIT 1
	`
	return s.scanOne(s.conn().QueryRowContext(ctx, query, models.NormalizeEmail(userEmail)))
}

// UpdateTokens updates the access-token fields for one (planner, user) pair
// in a single statement. The stored refresh token is never touched here, and
// a user's rows under other planners are not rewritten.
func (s *ConnectionStore) UpdateTokens(ctx context.Context, plannerEmail, userEmail, accessToken, tokenType, scope string, expiry time.Time) error {
	query := `
		UPDATE connections SET
			access_token = $1,
			token_type = $2,
			scope = $3,
			token_expiry = $4,
			updated_at = $5
		WHERE LOWER(planner_email) = $6 AND LOWER(user_email) = $7 AND status <> 'deleted'
	`
	_, err := s.conn().ExecContext(ctx, query,
		accessToken, tokenType, scope, expiry.Unix(), time.Now().Unix(),
		models.NormalizeEmail(plannerEmail), models.NormalizeEmail(userEmail),
	)
	return err
}

// SetStatus updates the lifecycle status for a pair.
func (s *ConnectionStore) SetStatus(ctx context.Context, plannerEmail, userEmail string, status models.ConnectionStatus) error {
	query := `
		UPDATE connections SET status = $1, updated_at = $2
		WHERE LOWER(planner_email) = $3 AND LOWER(user_email) = $4
	`
	_, err := s.conn().ExecContext(ctx, query,
		string(status), time.Now().Unix(),
		models.NormalizeEmail(plannerEmail), models.NormalizeEmail(userEmail),
	)
	return err
}

// Delete removes the connection row for a pair.
func (s *ConnectionStore) Delete(ctx context.Context, plannerEmail, userEmail string) error {
	query := `DELETE FROM connections WHERE LOWER(planner_email) = $1 AND LOWER(user_email) = $2`
	_, err := s.conn().ExecContext(ctx, query,
		models.NormalizeEmail(plannerEmail), models.NormalizeEmail(userEmail))
	return err
}

// ListByPlanner retrieves all non-deleted connections for a planner.
func (s *ConnectionStore) ListByPlanner(ctx context.Context, plannerEmail string) ([]*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE LOWER(planner_email) = $1 AND status <> 'deleted'
		ORDER BY user_email ASC
	`
	rows, err := s.conn().QueryContext(ctx, query, models.NormalizeEmail(plannerEmail))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}

	return conns, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ConnectionStore) scanOne(row *sql.Row) (*models.Connection, error) {
	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	var conn models.Connection
	var status string
	var accessToken, refreshToken, scope, tokenType sql.NullString
	var expiry, updatedAt int64

	err := row.Scan(
		&conn.PlannerEmail, &conn.UserEmail, &conn.Provider,
		&accessToken, &refreshToken, &scope, &tokenType,
		&expiry, &status, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.AccessToken = accessToken.String
	conn.RefreshToken = refreshToken.String
	conn.Scope = scope.String
	conn.TokenType = tokenType.String
	conn.Status = models.ConnectionStatus(status)
	if expiry > 0 {
		conn.TokenExpiry = time.Unix(expiry, 0)
	}
	conn.UpdatedAt = time.Unix(updatedAt, 0)

	return &conn, nil
}
