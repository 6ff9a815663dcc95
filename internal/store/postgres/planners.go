package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plan2tasks/plan2tasks/internal/models"
	"github.com/plan2tasks/plan2tasks/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// PlannerStore implements store.PlannerStore using PostgreSQL.
type PlannerStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *PlannerStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new planner with a hashed password.
func (s *PlannerStore) Create(ctx context.Context, email, password string) (*store.Planner, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().Unix()

	query := `
		INSERT INTO planners (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err = s.conn().ExecContext(ctx, query, id, email, string(hashedPassword), now)
	if err != nil {
		return nil, wrapDuplicate(err)
	}

	return &store.Planner{
		ID:        id,
		Email:     email,
		CreatedAt: now,
	}, nil
}

// GetByEmail retrieves a planner by email.
func (s *PlannerStore) GetByEmail(ctx context.Context, email string) (*store.Planner, error) {
	query := `SELECT id, email, created_at FROM planners WHERE LOWER(email) = $1`

	var planner store.Planner
	err := s.conn().QueryRowContext(ctx, query, models.NormalizeEmail(email)).Scan(
		&planner.ID, &planner.Email, &planner.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &planner, nil
}

// Authenticate verifies credentials and returns the planner.
func (s *PlannerStore) Authenticate(ctx context.Context, email, password string) (*store.Planner, error) {
	query := `SELECT id, email, password_hash, created_at FROM planners WHERE LOWER(email) = $1`

	var planner store.Planner
	var passwordHash string
	err := s.conn().QueryRowContext(ctx, query, models.NormalizeEmail(email)).Scan(
		&planner.ID, &planner.Email, &passwordHash, &planner.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	return &planner, nil
}
