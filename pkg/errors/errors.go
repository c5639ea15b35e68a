package billing_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyExists      = errors.New("already exists")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrProviderTimeout    = errors.New("provider timeout")
	ErrProviderFailure    = errors.New("provider failure")
	ErrMissingConfig      = errors.New("missing configuration")
)

// NowUTC returns the current time in UTC truncated to microseconds,
// the precision both supported databases keep.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := NowUTC()
	return &now
}
