package queue

import (
	"context"
	"errors"

	"github.com/queuectl/queuectl/pkg/observability/logger"
)

// Queue is the enqueue-side service: it validates new jobs and writes
// them into the shared store. Workers and the DLQ service talk to the
// store directly.
type Queue struct {
	store      Store
	storeName  string
	log        logger.Logger
	maxRetries int
}

// NewQueue creates an enqueue service over the given store. storeName
// is the adapter kind used for metric labels. defaultMaxRetries applies
// when a job is enqueued without an explicit budget.
func NewQueue(store Store, storeName string, log logger.Logger, defaultMaxRetries int) (*Queue, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = DefaultMaxRetries
	}
	return &Queue{
		store:      store,
		storeName:  storeName,
		log:        log,
		maxRetries: defaultMaxRetries,
	}, nil
}

// Enqueue creates a pending job for the command and persists it.
// A caller-supplied id must not collide with any job ever created; the
// store's insert enforces that atomically, so concurrent enqueues with
// the same id cannot race past each other.
func (q *Queue) Enqueue(ctx context.Context, id, command string, maxRetries int) (*Job, error) {
	if maxRetries <= 0 {
		maxRetries = q.maxRetries
	}

	job, err := NewJob(id, command, maxRetries)
	if err != nil {
		return nil, err
	}

	if err := q.store.Create(ctx, job); err != nil {
		return nil, err
	}

	RecordEnqueued(q.storeName)
	q.log.Info("job enqueued", "job_id", job.ID, "command", job.Command, "max_retries", job.MaxRetries)
	return job, nil
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	return q.store.Get(ctx, id)
}

// Stats returns the per-state job counts from the store.
func (q *Queue) Stats(ctx context.Context) (map[State]int, error) {
	return q.store.Stats(ctx)
}
