package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/queuectl/queuectl/pkg/observability/logger"
)

type queueTestLogger struct{}

func (l *queueTestLogger) Debug(string, ...any) {}
func (l *queueTestLogger) Info(string, ...any)  {}
func (l *queueTestLogger) Warn(string, ...any)  {}
func (l *queueTestLogger) Error(string, ...any) {}
func (l *queueTestLogger) With(...any) logger.Logger {
	return l
}
func (l *queueTestLogger) WithContext(context.Context) logger.Logger {
	return l
}

// fakeStore implements just enough of Store for enqueue-side tests.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*Job

	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*Job{}}
}

func (s *fakeStore) Create(_ context.Context, job *Job) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return DuplicateIDError(job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *fakeStore) Save(_ context.Context, job *Job) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *fakeStore) ListByState(context.Context, State) ([]*Job, error) { return nil, nil }
func (s *fakeStore) ClaimNext(context.Context) (*Job, error)            { return nil, nil }
func (s *fakeStore) ReleaseForRetry(context.Context, string) error      { return nil }
func (s *fakeStore) Stats(context.Context) (map[State]int, error)       { return nil, nil }
func (s *fakeStore) HealthCheck(context.Context) error                  { return nil }
func (s *fakeStore) Close() error                                       { return nil }

func TestEnqueuePersistsPendingJob(t *testing.T) {
	store := newFakeStore()
	q, err := NewQueue(store, "memory", &queueTestLogger{}, 3)
	if err != nil {
		t.Fatal(err)
	}

	job, err := q.Enqueue(context.Background(), "", "echo hello", 0)
	if err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if job.State != StatePending {
		t.Fatalf("expected pending, got %q", job.State)
	}
	if job.MaxRetries != 3 {
		t.Fatalf("expected default max retries applied, got %d", job.MaxRetries)
	}

	stored, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("expected job persisted, got %v", err)
	}
	if stored.Command != "echo hello" {
		t.Fatalf("expected command persisted, got %q", stored.Command)
	}
}

func TestEnqueueRejectsDuplicateID(t *testing.T) {
	store := newFakeStore()
	q, err := NewQueue(store, "memory", &queueTestLogger{}, 3)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.Enqueue(context.Background(), "job-1", "echo one", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(context.Background(), "job-1", "echo two", 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error on duplicate id, got %v", err)
	}
}

func TestEnqueueGeneratedIDsDoNotProbeStore(t *testing.T) {
	store := newFakeStore()
	q, err := NewQueue(store, "memory", &queueTestLogger{}, 3)
	if err != nil {
		t.Fatal(err)
	}

	first, err := q.Enqueue(context.Background(), "", "echo one", 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := q.Enqueue(context.Background(), "", "echo two", 0)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct generated ids")
	}
}

func TestEnqueueSurfacesStoreError(t *testing.T) {
	store := newFakeStore()
	store.saveErr = StoreError("save", errors.New("disk full"))
	q, err := NewQueue(store, "memory", &queueTestLogger{}, 3)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.Enqueue(context.Background(), "", "echo hello", 0); !errors.Is(err, ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestEnqueueExplicitRetryBudgetWins(t *testing.T) {
	store := newFakeStore()
	q, err := NewQueue(store, "memory", &queueTestLogger{}, 3)
	if err != nil {
		t.Fatal(err)
	}

	job, err := q.Enqueue(context.Background(), "", "echo hello", 7)
	if err != nil {
		t.Fatal(err)
	}
	if job.MaxRetries != 7 {
		t.Fatalf("expected explicit max retries 7, got %d", job.MaxRetries)
	}
}
