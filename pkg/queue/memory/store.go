// Package memory provides a mutex-guarded in-memory job store. It backs
// tests and ephemeral runs; the claim guarantee holds because one lock
// spans the select-and-update.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/queue"
)

// Store is an in-memory queue.Store implementation.
type Store struct {
	log logger.Logger

	mu     sync.Mutex
	jobs   map[string]*queue.Job
	closed bool
}

var errClosed = errors.New("store is closed")

// NewStore creates an empty in-memory store.
func NewStore(log logger.Logger) (*Store, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Store{
		log:  log,
		jobs: map[string]*queue.Job{},
	}, nil
}

// Create inserts a new job. The existence check and the write share one
// lock, so duplicate ids are rejected even under concurrent enqueues.
func (s *Store) Create(ctx context.Context, job *queue.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return queue.StoreError("create", errClosed)
	}
	if _, ok := s.jobs[job.ID]; ok {
		return queue.DuplicateIDError(job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Save upserts the job by id.
func (s *Store) Save(ctx context.Context, job *queue.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return queue.StoreError("save", errClosed)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns the job with the given id or queue.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*queue.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, queue.StoreError("get", errClosed)
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, queue.ErrNotFound
	}
	return job.Clone(), nil
}

// ListByState returns jobs in the given state in creation order.
func (s *Store) ListByState(ctx context.Context, state queue.State) ([]*queue.Job, error) {
	if _, err := queue.ParseState(string(state)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, queue.StoreError("list", errClosed)
	}

	matched := make([]*queue.Job, 0)
	for _, job := range s.jobs {
		if job.State == state {
			matched = append(matched, job.Clone())
		}
	}
	sortByCreation(matched)
	return matched, nil
}

// ClaimNext hands the oldest pending job to the caller, already moved
// to processing. The whole select-and-update runs under one lock, so
// no two callers can receive the same job.
func (s *Store) ClaimNext(ctx context.Context) (*queue.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, queue.StoreError("claim", errClosed)
	}

	var oldest *queue.Job
	for _, job := range s.jobs {
		if job.State != queue.StatePending {
			continue
		}
		if oldest == nil || createdBefore(job, oldest) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	if err := oldest.MarkProcessing(time.Now().UTC()); err != nil {
		return nil, err
	}
	return oldest.Clone(), nil
}

// ReleaseForRetry moves a failed job back to pending. Jobs in any other
// state are left untouched; a concurrent DLQ retry wins.
func (s *Store) ReleaseForRetry(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return queue.StoreError("release", errClosed)
	}

	job, ok := s.jobs[id]
	if !ok {
		return queue.ErrNotFound
	}
	if job.State != queue.StateFailed {
		return nil
	}
	job.State = queue.StatePending
	job.UpdatedAt = laterOf(time.Now().UTC(), job.UpdatedAt)
	return nil
}

// Stats counts jobs per state, reporting every state even at zero.
func (s *Store) Stats(ctx context.Context) (map[queue.State]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, queue.StoreError("stats", errClosed)
	}

	stats := make(map[queue.State]int, len(queue.AllStates()))
	for _, state := range queue.AllStates() {
		stats[state] = 0
	}
	for _, job := range s.jobs {
		stats[job.State]++
	}
	return stats, nil
}

// HealthCheck reports whether the store is still usable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return queue.StoreError("healthcheck", errClosed)
	}
	return nil
}

// Close marks the store unusable. Records are dropped with it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortByCreation(jobs []*queue.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return createdBefore(jobs[i], jobs[j])
	})
}

func createdBefore(a, b *queue.Job) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func laterOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
