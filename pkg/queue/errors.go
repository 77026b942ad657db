package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies malformed input (bad state filter, duplicate enqueue id).
	ErrValidation = errors.New("queue validation error")
	// ErrNotFound classifies lookups of unknown job ids.
	ErrNotFound = errors.New("queue job not found")
	// ErrInvalidState classifies transitions not allowed from the job's current state.
	ErrInvalidState = errors.New("queue invalid job state")
	// ErrStore classifies non-transient storage failures surfaced to the caller.
	// Transient contention is retried inside the store and never carries this.
	ErrStore = errors.New("queue store error")
)

func queueError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

// DuplicateIDError classifies an insert against a job id that already
// exists.
func DuplicateIDError(id string) error {
	return fmt.Errorf("%w: job id %q already exists", ErrValidation, id)
}

// StoreError wraps a storage driver failure into the ErrStore class.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}
