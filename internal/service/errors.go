package service

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState is returned when the trip's current status does not allow the transition.
	ErrInvalidState = errors.New("invalid trip state")

	// ErrConflict is returned alongside ErrInvalidState when a concurrent writer won the race.
	ErrConflict = errors.New("concurrent modification")

	// ErrValidation is returned when input fails validation.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicate is returned when a unique attribute is already taken.
	ErrDuplicate = errors.New("already exists")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated is returned when no valid identity accompanies a request.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// invalid wraps ErrValidation with a field-specific message.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
