package users

import "errors"

var (
	ErrNotFound           = errors.New("user not found")
	ErrConflict           = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSelfDelete         = errors.New("cannot delete your own account")
)

// ValidationError reports missing fields or a weak password.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }
