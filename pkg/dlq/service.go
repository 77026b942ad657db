// Package dlq provides inspection and recovery of dead jobs, the
// dead-letter queue side of the store.
package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/queue"
)

// Service lists dead jobs and moves them back into the live queue.
type Service struct {
	store queue.Store
	log   logger.Logger
}

// NewService creates a DLQ service over the shared job store.
func NewService(store queue.Store, log logger.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		store: store,
		log:   log,
	}, nil
}

// List returns all dead jobs in creation order.
func (s *Service) List(ctx context.Context) ([]*queue.Job, error) {
	return s.store.ListByState(ctx, queue.StateDead)
}

// Retry moves one dead job back to pending with a fresh attempt budget.
// Returns queue.ErrNotFound for an unknown id and queue.ErrInvalidState
// when the job is not dead.
func (s *Service) Retry(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := job.ResetForRetry(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, job); err != nil {
		return nil, err
	}

	s.log.Info("dead job requeued", "job_id", job.ID)
	return job, nil
}
