package dlq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/queue"
	"github.com/queuectl/queuectl/pkg/queue/memory"
)

type dlqTestLogger struct{}

func (l *dlqTestLogger) Debug(string, ...any) {}
func (l *dlqTestLogger) Info(string, ...any)  {}
func (l *dlqTestLogger) Warn(string, ...any)  {}
func (l *dlqTestLogger) Error(string, ...any) {}
func (l *dlqTestLogger) With(...any) logger.Logger {
	return l
}
func (l *dlqTestLogger) WithContext(context.Context) logger.Logger {
	return l
}

func newTestService(t *testing.T) (*Service, queue.Store) {
	t.Helper()
	store, err := memory.NewStore(&dlqTestLogger{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	service, err := NewService(store, &dlqTestLogger{})
	if err != nil {
		t.Fatal(err)
	}
	return service, store
}

func saveJob(t *testing.T, store queue.Store, id string, state queue.State, attempts int) {
	t.Helper()
	now := time.Now().UTC()
	job := &queue.Job{
		ID:         id,
		Command:    "echo " + id,
		State:      state,
		Attempts:   attempts,
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastError:  "exit code 1",
	}
	if state == queue.StatePending {
		job.LastError = ""
	}
	if err := store.Save(context.Background(), job); err != nil {
		t.Fatal(err)
	}
}

func TestListReturnsOnlyDeadJobs(t *testing.T) {
	service, store := newTestService(t)
	saveJob(t, store, "alive", queue.StatePending, 0)
	saveJob(t, store, "gone-1", queue.StateDead, 3)
	saveJob(t, store, "gone-2", queue.StateDead, 3)

	jobs, err := service.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected two dead jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.State != queue.StateDead {
			t.Fatalf("expected only dead jobs, got %q", job.State)
		}
	}
}

func TestRetryRequeuesDeadJob(t *testing.T) {
	service, store := newTestService(t)
	saveJob(t, store, "gone", queue.StateDead, 3)

	job, err := service.Retry(context.Background(), "gone")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if job.State != queue.StatePending {
		t.Fatalf("expected pending, got %q", job.State)
	}
	if job.Attempts != 0 || job.LastError != "" {
		t.Fatalf("expected fresh retry budget, got %+v", job)
	}

	stored, err := store.Get(context.Background(), "gone")
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != queue.StatePending {
		t.Fatalf("expected reset persisted, got %q", stored.State)
	}
}

func TestRetryUnknownJob(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.Retry(context.Background(), "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetryRejectsLiveJob(t *testing.T) {
	service, store := newTestService(t)
	saveJob(t, store, "alive", queue.StatePending, 0)

	if _, err := service.Retry(context.Background(), "alive"); !errors.Is(err, queue.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	stored, err := store.Get(context.Background(), "alive")
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != queue.StatePending {
		t.Fatalf("expected job untouched, got %q", stored.State)
	}
}
