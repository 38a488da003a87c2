package service

import (
	"errors"
	"fmt"

	"tynles/internal/recurrence"
	"tynles/internal/repository"
)

var (
	// ErrNotFound means the task, user or space does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the operation no longer applies, e.g. the task
	// was already completed and removed.
	ErrInvalidState = errors.New("invalid state")
	// ErrTransport means a message could not be delivered.
	ErrTransport = errors.New("transport failure")
	// ErrTimeout means a scheduled job ran past its budget.
	ErrTimeout = errors.New("job timeout")
	// ErrValidation means a recurrence rule, timezone or task field is malformed.
	ErrValidation = errors.New("validation error")
)

// classify maps lower-layer errors onto the service taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, recurrence.ErrInvalidRule), errors.Is(err, recurrence.ErrUnknownZone):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	default:
		return err
	}
}
