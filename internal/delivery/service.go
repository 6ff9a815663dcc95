// Package delivery pushes plans into connected users' Google Tasks accounts.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/plan2tasks/plan2tasks/internal/models"
)

// TokenSource resolves a currently valid access token for a user. Delivery
// never reads credential material from storage directly.
type TokenSource interface {
	ValidAccessToken(ctx context.Context, userEmail string) (string, error)
}

// Result is the per-user outcome of a push. Items are independent: one
// user's failure does not undo tasks already pushed for another.
type Result struct {
	UserEmail string `json:"user_email"`
	Status    string `json:"status"` // "success" or "error"
	Tasks     int    `json:"tasks,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchResult aggregates the outcomes of a bulk push.
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Service delivers plans to Google Tasks.
type Service struct {
	tokens         TokenSource
	maxConcurrency int
	logger         *slog.Logger

	// pushUser is swappable for tests of the fan-out logic.
	pushUser func(ctx context.Context, userEmail string, plan models.Plan) (int, error)
}

// NewService creates a delivery service. maxConcurrency bounds the fan-out
// of a bulk push.
func NewService(tokens TokenSource, maxConcurrency int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	s := &Service{
		tokens:         tokens,
		maxConcurrency: maxConcurrency,
		logger:         logger.With("component", "delivery"),
	}
	s.pushUser = s.deliver
	return s
}

// Push delivers a plan to a single user: resolve a valid access token,
// find-or-create the task list, insert each task.
func (s *Service) Push(ctx context.Context, userEmail string, plan models.Plan) (int, error) {
	return s.pushUser(ctx, userEmail, plan)
}

// PushAll delivers a plan to each user with bounded fan-out, collecting a
// per-user result. There is no partial rollback.
func (s *Service) PushAll(ctx context.Context, userEmails []string, plan models.Plan) *BatchResult {
	results := make([]Result, len(userEmails))
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for i, email := range userEmails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			n, err := s.pushUser(ctx, email, plan)
			if err != nil {
				s.logger.Error("push failed", "user", email, "error", err)
				results[i] = Result{UserEmail: email, Status: "error", Error: err.Error()}
				return
			}
			results[i] = Result{UserEmail: email, Status: "success", Tasks: n}
		}(i, email)
	}
	wg.Wait()

	batch := &BatchResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == "success" {
			batch.Successful++
		} else {
			batch.Failed++
		}
	}
	return batch
}

// deliver performs the real push against the Tasks API.
func (s *Service) deliver(ctx context.Context, userEmail string, plan models.Plan) (int, error) {
	accessToken, err := s.tokens.ValidAccessToken(ctx, userEmail)
	if err != nil {
		return 0, err
	}

	svc, err := tasks.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})))
	if err != nil {
		return 0, fmt.Errorf("creating Tasks service: %w", err)
	}

	listID, err := ensureTaskList(svc, plan.ListTitle)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, item := range plan.Tasks {
		t := &tasks.Task{
			Title: item.Title,
			Notes: item.Notes,
		}
		if !item.Due.IsZero() {
			t.Due = item.Due.Format(time.RFC3339)
		}
		if _, err := svc.Tasks.Insert(listID, t).Do(); err != nil {
			return inserted, fmt.Errorf("inserting task %q: %w", item.Title, err)
		}
		inserted++
	}

	s.logger.Info("plan delivered", "user", userEmail, "list", plan.ListTitle, "tasks", inserted)
	return inserted, nil
}

// ensureTaskList returns the id of the list with the given title, creating
// it when absent.
func ensureTaskList(svc *tasks.Service, title string) (string, error) {
	existing, err := svc.Tasklists.List().Do()
	if err != nil {
		return "", fmt.Errorf("listing task lists: %w", err)
	}
	for _, tl := range existing.Items {
		if tl.Title == title {
			return tl.Id, nil
		}
	}

	created, err := svc.Tasklists.Insert(&tasks.TaskList{Title: title}).Do()
	if err != nil {
		return "", fmt.Errorf("creating task list: %w", err)
	}
	return created.Id, nil
}
