package connect

import (
	"errors"

	"github.com/plan2tasks/plan2tasks/internal/google"
)

// Errors returned by the connection service. Callers branch on these to pick
// a remediation: re-running the OAuth flow, retrying, or paging an operator.
var (
	// ErrInvalidEmail is returned when an email fails syntactic validation.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrMissingCode is returned when a callback arrives without an
	// authorization code. Nothing was persisted; re-initiating is safe.
	ErrMissingCode = errors.New("missing authorization code")

	// ErrNotConnected is returned when no connected credential record exists
	// for a user. Not retryable: the user must go through invite/OAuth again.
	ErrNotConnected = errors.New("user is not connected")

	// ErrNoRefreshToken is returned when a connection exists but holds no
	// refresh token. Same remediation as ErrNotConnected.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrNoRefreshIssued is returned when a first-time exchange yields no
	// refresh token and none is stored; the connection would be unusable.
	ErrNoRefreshIssued = errors.New("provider issued no refresh token")

	// ErrUnattributed is returned when a callback cannot be resolved to a
	// (planner, user) pair. The exchange succeeded but nothing was written.
	ErrUnattributed = errors.New("cannot attribute oauth callback to a planner/user pair")

	// ErrCommitFailed wraps a store failure that happened after a successful
	// token exchange. The provider-issued tokens are orphaned; this is logged
	// as a distinct error class because recovery needs manual reconciliation
	// or a persistence-only retry.
	ErrCommitFailed = errors.New("token exchange succeeded but persistence failed")
)

// ProviderRejected extracts the structured provider rejection from err, if
// any. invalid_grant at refresh time means the refresh token is revoked and
// the user must re-consent.
func ProviderRejected(err error) (*google.ProviderError, bool) {
	var pe *google.ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
