package orchestrators

import "errors"

// Errors callers map to responses. Domain validation errors are wrapped in
// *ValidationError.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyCheckedIn   = errors.New("guest is already checked in today")
	ErrDailyLimitReached  = errors.New("daily limit reached for this service")
	ErrNotToday           = errors.New("can only undo today's entries")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is locked due to too many failed attempts")
	ErrEmailAlreadyExists = errors.New("an account with this email already exists")
)

// ValidationError reports input that failed validation.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

// Unwrap exposes the underlying domain error, if any.
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error) error {
	return &ValidationError{Message: err.Error(), Err: err}
}

func invalidf(msg string) error {
	return &ValidationError{Message: msg}
}
