package service

import (
	"errors"

	"studio/web/internal/repository"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrSelfDelete         = errors.New("cannot delete own account")

	ErrDuplicateEmail = repository.ErrDuplicateEmail
	ErrUserNotFound   = repository.ErrUserNotFound
)

// ValidationError reports the first malformed field of a submitted form.
// Message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
