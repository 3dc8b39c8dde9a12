package exam

import "errors"

var (
	// ErrNotFound also covers "exists but belongs to someone else", so callers
	// cannot probe for other users' attempts.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAttempt is returned by Store.CreateAttempt when the
	// (user, schedule) pair already has an attempt. Start recovers from it.
	ErrDuplicateAttempt = errors.New("attempt already exists")

	ErrAttemptCompleted = errors.New("attempt already completed")
	ErrNotAvailable     = errors.New("scheduled test is not available")
	ErrForbidden        = errors.New("forbidden")
)

// ValidationError reports a missing or malformed input.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }
