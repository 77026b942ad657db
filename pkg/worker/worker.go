// Package worker implements the poll-claim-execute loop and the manager
// that runs a pool of such loops over one shared store.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/queuectl/queuectl/pkg/executor"
	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/queue"
)

const (
	// DefaultIdleInterval is the sleep between polls when no pending job exists.
	DefaultIdleInterval = time.Second

	// releaseTimeout bounds the store call that returns a failed job to
	// pending when the worker is already shutting down.
	releaseTimeout = 5 * time.Second
)

// Status is the lifecycle state of a single worker.
type Status string

const (
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

// Worker runs one claim-execute loop. Multiple workers may share one
// store; the store's claim operation guarantees mutual exclusion.
type Worker struct {
	id           string
	store        queue.Store
	executor     *executor.Executor
	policy       RetryPolicy
	idleInterval time.Duration
	log          logger.Logger
	running      chan struct{}

	mu     sync.Mutex
	status Status
}

// New creates a worker. A non-positive idle interval falls back to
// DefaultIdleInterval.
func New(id string, store queue.Store, exec *executor.Executor, policy RetryPolicy, idleInterval time.Duration, log logger.Logger) (*Worker, error) {
	if id == "" {
		return nil, errors.New("worker id is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if idleInterval <= 0 {
		idleInterval = DefaultIdleInterval
	}
	return &Worker{
		id:           id,
		store:        store,
		executor:     exec,
		policy:       policy,
		idleInterval: idleInterval,
		log:          log.With("worker_id", id),
		running:      make(chan struct{}),
		status:       StatusCreated,
	}, nil
}

// ID returns the worker identifier.
func (w *Worker) ID() string {
	return w.id
}

// Status returns the current lifecycle state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) setStatus(status Status) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

// Running returns a channel that is closed once the worker's loop is
// live. The manager waits on it so Start only returns with every
// worker in the running state.
func (w *Worker) Running() <-chan struct{} {
	return w.running
}

// Run polls the store until ctx is canceled. A job claimed before the
// cancellation is still executed to completion; only then does the
// worker exit. Store errors during a poll are logged and treated like
// an empty queue. Run may be called at most once per worker.
func (w *Worker) Run(ctx context.Context) error {
	w.setStatus(StatusRunning)
	close(w.running)
	defer w.setStatus(StatusStopped)

	w.log.Info("worker started", "idle_interval", w.idleInterval)

	for {
		if ctx.Err() != nil {
			w.setStatus(StatusStopping)
			w.log.Info("worker stopping")
			return nil
		}

		job, err := w.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error("failed to claim job", "error", err)
			w.sleep(ctx, w.idleInterval)
			continue
		}
		if job == nil {
			w.sleep(ctx, w.idleInterval)
			continue
		}

		w.process(ctx, job)
	}
}

// process executes one claimed job and persists the outcome. Store
// writes run on a detached context so a shutdown mid-execution cannot
// strand the job in the processing state.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	jobCtx := logger.ContextWithJobID(context.WithoutCancel(ctx), job.ID)
	log := w.log.WithContext(jobCtx)

	queue.IncInFlight()
	defer queue.DecInFlight()

	log.Info("job claimed", "attempts", job.Attempts, "max_retries", job.MaxRetries)
	outcome := w.executor.Run(jobCtx, job.Command)
	now := time.Now().UTC()

	if outcome.Success {
		if err := job.ApplySuccess(now); err != nil {
			log.Error("cannot record job success", "error", err)
			return
		}
		if err := w.store.Save(jobCtx, job); err != nil {
			log.Error("failed to persist job completion", "error", err)
			return
		}
		queue.RecordProcessed("success")
		log.Info("job completed")
		return
	}

	if err := job.ApplyFailure(outcome.Diagnostic, now); err != nil {
		log.Error("cannot record job failure", "error", err)
		return
	}
	if err := w.store.Save(jobCtx, job); err != nil {
		log.Error("failed to persist job failure", "error", err)
		return
	}

	if job.State == queue.StateDead {
		queue.RecordDead()
		queue.RecordProcessed("dead")
		log.Warn("job moved to dead letter queue",
			"attempts", job.Attempts, "last_error", outcome.Diagnostic)
		return
	}

	queue.RecordRetry()
	queue.RecordProcessed("failed")

	delay := w.policy.Delay(job.Attempts)
	log.Info("job failed, retry scheduled",
		"attempts", job.Attempts, "delay", delay, "last_error", outcome.Diagnostic)

	// Wait out the backoff, then return the job to pending. A shutdown
	// cuts the wait short but still releases the job so it is not left
	// in the failed state until the next worker run.
	w.sleep(ctx, delay)
	w.release(jobCtx, job.ID, log)
}

func (w *Worker) release(ctx context.Context, jobID string, log logger.Logger) {
	ctx, cancel := context.WithTimeout(ctx, releaseTimeout)
	defer cancel()

	if err := w.store.ReleaseForRetry(ctx, jobID); err != nil {
		log.Error("failed to release job for retry", "error", err)
		return
	}
	log.Debug("job released for retry")
}

// sleep waits for d or until ctx is canceled, whichever comes first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
