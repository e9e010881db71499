package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrNoActiveSession    = errors.New("no active session")
	ErrSessionAlreadyOpen = errors.New("session already open")
	ErrNoSuchOpenSession  = errors.New("no such open session")
	ErrValidationFailed   = errors.New("validation failed")
	ErrPersistenceFailed  = errors.New("persistence failed")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrAlreadyOnBreak     = errors.New("break already in progress")
	ErrNotOnBreak         = errors.New("no break in progress")
	ErrHoldRequired       = errors.New("hold confirmation required")
)

// ValidationError lists the fields that blocked a submission.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// Persistence marks a storage failure as retryable while keeping the cause
// reachable through errors.Is / errors.As.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceFailed, err)
}

// IsRetryable reports whether the caller should keep its in-memory state and retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceFailed)
}
