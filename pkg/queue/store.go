package queue

import (
	"context"
)

// Store is the single coordination point shared by all workers. Every
// observation of job state goes through it; no implementation may keep
// per-worker caches.
type Store interface {
	// Create inserts a new job, failing with ErrValidation when the id
	// already exists. Enqueue goes through this so two concurrent
	// enqueues with the same id can never overwrite each other.
	Create(ctx context.Context, job *Job) error

	// Save upserts the job by id.
	Save(ctx context.Context, job *Job) error

	// Get returns the job with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// ListByState returns all jobs in the given state, ordered by
	// created_at ascending with id as the tiebreak.
	ListByState(ctx context.Context, state State) ([]*Job, error)

	// ClaimNext atomically selects the oldest pending job, transitions it
	// to processing, and returns it. Returns (nil, nil) when no pending
	// job exists. Under any number of concurrent callers each pending job
	// is handed to at most one of them; contention is retried internally
	// and never surfaced.
	ClaimNext(ctx context.Context) (*Job, error)

	// ReleaseForRetry moves a failed job back to pending once its backoff
	// delay has elapsed. The transition is conditional on the job still
	// being failed; any other state is left untouched.
	ReleaseForRetry(ctx context.Context, id string) error

	// Stats returns a count per state, covering every state even at zero.
	Stats(ctx context.Context) (map[State]int, error)

	// HealthCheck verifies the backing storage is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the underlying storage handle.
	Close() error
}
