package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the attempt budget applied when a job is enqueued without one.
const DefaultMaxRetries = 3

// State is the lifecycle state of a job. The string values are the
// persisted representation and must not change.
type State string

const (
	// StatePending marks a job waiting to be claimed by a worker.
	StatePending State = "pending"
	// StateProcessing marks a job exclusively claimed by one worker.
	StateProcessing State = "processing"
	// StateCompleted marks a job whose command exited successfully. Terminal.
	StateCompleted State = "completed"
	// StateFailed marks a job whose last execution failed but which still
	// has retry budget left. Re-enters pending once its backoff elapses.
	StateFailed State = "failed"
	// StateDead marks a job that exhausted its retries. Terminal for
	// automatic processing; only a DLQ retry revives it.
	StateDead State = "dead"
)

// AllStates returns every job state in a fixed order. Stats reporting
// iterates this so that zero counts are always present.
func AllStates() []State {
	return []State{StatePending, StateProcessing, StateCompleted, StateFailed, StateDead}
}

// ParseState converts stored or user-supplied text into a State.
func ParseState(value string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(value)))
	switch state {
	case StatePending, StateProcessing, StateCompleted, StateFailed, StateDead:
		return state, nil
	default:
		return "", queueError(ErrValidation, fmt.Sprintf("unknown job state %q", value))
	}
}

// Terminal reports whether the state is final with respect to automatic processing.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDead
}

// Job describes one queued shell command and its execution bookkeeping.
// Command, ID and MaxRetries are immutable once enqueued; only State,
// Attempts, LastError and UpdatedAt change afterwards (plus the DLQ
// retry reset).
type Job struct {
	ID         string
	Command    string
	State      State
	Attempts   int
	MaxRetries int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastError  string
}

// NewJob creates a pending job for the given command. An empty id is
// replaced with a random UUID; caller-supplied ids are kept verbatim.
func NewJob(id, command string, maxRetries int) (*Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(command) == "" {
		return nil, queueError(ErrValidation, "job command is required")
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	now := time.Now().UTC()
	return &Job{
		ID:         id,
		Command:    command,
		State:      StatePending,
		Attempts:   0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Validate checks the structural invariants every persisted job must hold.
func (j *Job) Validate() error {
	if j == nil {
		return queueError(ErrValidation, "job is nil")
	}
	if strings.TrimSpace(j.ID) == "" {
		return queueError(ErrValidation, "job id is required")
	}
	if strings.TrimSpace(j.Command) == "" {
		return queueError(ErrValidation, "job command is required")
	}
	if _, err := ParseState(string(j.State)); err != nil {
		return err
	}
	if j.Attempts < 0 {
		return queueError(ErrValidation, "job attempts must be >= 0")
	}
	if j.MaxRetries <= 0 {
		return queueError(ErrValidation, "job max retries must be > 0")
	}
	if j.State != StateDead && j.Attempts > j.MaxRetries {
		return queueError(ErrValidation, "job attempts cannot exceed max retries")
	}
	if j.UpdatedAt.Before(j.CreatedAt) {
		return queueError(ErrValidation, "job updated_at cannot precede created_at")
	}
	return nil
}

// MarkProcessing transitions a pending job into processing. Stores call
// this from inside their atomic claim.
func (j *Job) MarkProcessing(now time.Time) error {
	if j.State != StatePending {
		return queueError(ErrInvalidState, fmt.Sprintf("cannot claim job in state %q", j.State))
	}
	j.State = StateProcessing
	j.touch(now)
	return nil
}

// ApplySuccess records a successful execution. Attempts and LastError
// are left untouched.
func (j *Job) ApplySuccess(now time.Time) error {
	if j.State != StateProcessing {
		return queueError(ErrInvalidState, fmt.Sprintf("cannot complete job in state %q", j.State))
	}
	j.State = StateCompleted
	j.touch(now)
	return nil
}

// ApplyFailure records a failed execution: increments the attempt
// counter, stores the diagnostic, and moves the job to failed or, when
// the retry budget is exhausted, to dead.
func (j *Job) ApplyFailure(diagnostic string, now time.Time) error {
	if j.State != StateProcessing {
		return queueError(ErrInvalidState, fmt.Sprintf("cannot fail job in state %q", j.State))
	}
	j.Attempts++
	j.LastError = diagnostic
	if j.Attempts >= j.MaxRetries {
		j.State = StateDead
	} else {
		j.State = StateFailed
	}
	j.touch(now)
	return nil
}

// ResetForRetry performs the DLQ recovery reset: attempts back to zero,
// diagnostic cleared, state pending. Only dead jobs may be reset.
func (j *Job) ResetForRetry(now time.Time) error {
	if j.State != StateDead {
		return queueError(ErrInvalidState, fmt.Sprintf("cannot retry job in state %q", j.State))
	}
	j.State = StatePending
	j.Attempts = 0
	j.LastError = ""
	j.touch(now)
	return nil
}

// Clone returns a deep copy so stores never hand out aliased records.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	copyJob := *j
	return &copyJob
}

// touch advances UpdatedAt, keeping it non-decreasing even when the
// caller's clock reads earlier than the last write.
func (j *Job) touch(now time.Time) {
	now = now.UTC()
	if now.Before(j.UpdatedAt) {
		now = j.UpdatedAt
	}
	j.UpdatedAt = now
}
