package postgres

import (
	"fmt"
	"strings"

	"github.com/plan2tasks/plan2tasks/internal/store"
)

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// PostgreSQL error code 23505 is unique_violation
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "unique constraint") ||
		strings.Contains(err.Error(), "duplicate key")
}

// wrapDuplicate maps a driver unique-violation onto store.ErrDuplicate so
// callers can detect insert races without inspecting driver strings.
func wrapDuplicate(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	return err
}
