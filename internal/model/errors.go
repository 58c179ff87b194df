package model

import "errors"

// Sentinel errors for the connector's failure taxonomy. Callers classify with
// errors.Is and wrap with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrValidation marks a malformed control request (scan id format,
	// page bounds, missing token).
	ErrValidation = errors.New("validation error")

	// ErrConflict marks duplicate starts, remove-while-running and
	// cancel-of-terminal-job.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks an unknown scan id.
	ErrNotFound = errors.New("not found")

	// ErrAuthenticationFailed is returned on HTTP 401 from the source API.
	// Never retried: retrying cannot fix a bad credential.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAuthorizationFailed is returned on HTTP 403 from the source API.
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrRateLimitExceeded is returned once the 429 retry budget is spent.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrTransientAPI is returned once the retry budget for 5xx or
	// network-level failures is spent.
	ErrTransientAPI = errors.New("transient api failure")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
