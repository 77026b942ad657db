package queue

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func pendingJob() *Job {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Job{
		ID:         "job-1",
		Command:    "echo hello",
		State:      StatePending,
		Attempts:   0,
		MaxRetries: 3,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestNewJobDefaults(t *testing.T) {
	job, err := NewJob("", "echo hello", 0)
	if err != nil {
		t.Fatalf("expected job, got %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected a generated id")
	}
	if job.State != StatePending {
		t.Fatalf("expected pending state, got %q", job.State)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default max retries %d, got %d", DefaultMaxRetries, job.MaxRetries)
	}
	if job.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", job.Attempts)
	}
}

func TestNewJobKeepsExplicitID(t *testing.T) {
	job, err := NewJob("deploy-42", "make deploy", 5)
	if err != nil {
		t.Fatalf("expected job, got %v", err)
	}
	if job.ID != "deploy-42" {
		t.Fatalf("expected explicit id, got %q", job.ID)
	}
	if job.MaxRetries != 5 {
		t.Fatalf("expected max retries 5, got %d", job.MaxRetries)
	}
}

func TestNewJobRequiresCommand(t *testing.T) {
	if _, err := NewJob("", "   ", 3); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestJobValidate(t *testing.T) {
	if err := pendingJob().Validate(); err != nil {
		t.Fatalf("expected valid job, got %v", err)
	}

	job := pendingJob()
	job.ID = " "
	if err := job.Validate(); err == nil || !strings.Contains(err.Error(), "id") {
		t.Fatalf("expected id validation error, got %v", err)
	}

	job = pendingJob()
	job.Command = ""
	if err := job.Validate(); err == nil || !strings.Contains(err.Error(), "command") {
		t.Fatalf("expected command validation error, got %v", err)
	}

	job = pendingJob()
	job.State = "sleeping"
	if err := job.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected state validation error, got %v", err)
	}

	job = pendingJob()
	job.Attempts = 4
	if err := job.Validate(); err == nil || !strings.Contains(err.Error(), "attempts") {
		t.Fatalf("expected attempts validation error, got %v", err)
	}

	// A dead job may report attempts == max retries budget and beyond.
	job = pendingJob()
	job.State = StateDead
	job.Attempts = 3
	if err := job.Validate(); err != nil {
		t.Fatalf("expected dead job to validate, got %v", err)
	}

	job = pendingJob()
	job.UpdatedAt = job.CreatedAt.Add(-time.Second)
	if err := job.Validate(); err == nil || !strings.Contains(err.Error(), "updated_at") {
		t.Fatalf("expected timestamp validation error, got %v", err)
	}
}

func TestParseState(t *testing.T) {
	state, err := ParseState(" Pending ")
	if err != nil {
		t.Fatalf("expected pending to parse, got %v", err)
	}
	if state != StatePending {
		t.Fatalf("expected pending, got %q", state)
	}

	if _, err := ParseState("retired"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStateTerminal(t *testing.T) {
	if !StateCompleted.Terminal() || !StateDead.Terminal() {
		t.Fatal("expected completed and dead to be terminal")
	}
	if StatePending.Terminal() || StateProcessing.Terminal() || StateFailed.Terminal() {
		t.Fatal("expected pending, processing and failed to be non-terminal")
	}
}

func TestMarkProcessing(t *testing.T) {
	job := pendingJob()
	now := job.CreatedAt.Add(time.Second)

	if err := job.MarkProcessing(now); err != nil {
		t.Fatalf("expected claim to succeed, got %v", err)
	}
	if job.State != StateProcessing {
		t.Fatalf("expected processing, got %q", job.State)
	}
	if !job.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at %s, got %s", now, job.UpdatedAt)
	}

	if err := job.MarkProcessing(now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state error on double claim, got %v", err)
	}
}

func TestApplySuccess(t *testing.T) {
	job := pendingJob()
	now := job.CreatedAt.Add(time.Second)

	if err := job.ApplySuccess(now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state error for pending job, got %v", err)
	}

	if err := job.MarkProcessing(now); err != nil {
		t.Fatal(err)
	}
	if err := job.ApplySuccess(now.Add(time.Second)); err != nil {
		t.Fatalf("expected success to apply, got %v", err)
	}
	if job.State != StateCompleted {
		t.Fatalf("expected completed, got %q", job.State)
	}
	if job.Attempts != 0 {
		t.Fatalf("expected attempts untouched, got %d", job.Attempts)
	}
}

func TestApplyFailureKeepsRetryBudget(t *testing.T) {
	job := pendingJob()
	now := job.CreatedAt.Add(time.Second)
	if err := job.MarkProcessing(now); err != nil {
		t.Fatal(err)
	}

	if err := job.ApplyFailure("exit code 1", now.Add(time.Second)); err != nil {
		t.Fatalf("expected failure to apply, got %v", err)
	}
	if job.State != StateFailed {
		t.Fatalf("expected failed, got %q", job.State)
	}
	if job.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", job.Attempts)
	}
	if job.LastError != "exit code 1" {
		t.Fatalf("expected diagnostic recorded, got %q", job.LastError)
	}
}

func TestApplyFailureExhaustsToDead(t *testing.T) {
	job := pendingJob()
	job.MaxRetries = 2
	job.Attempts = 1
	now := job.CreatedAt.Add(time.Second)
	if err := job.MarkProcessing(now); err != nil {
		t.Fatal(err)
	}

	if err := job.ApplyFailure("boom", now.Add(time.Second)); err != nil {
		t.Fatalf("expected failure to apply, got %v", err)
	}
	if job.State != StateDead {
		t.Fatalf("expected dead after exhausting retries, got %q", job.State)
	}
	if job.Attempts != 2 {
		t.Fatalf("expected attempts == max retries, got %d", job.Attempts)
	}
}

func TestResetForRetry(t *testing.T) {
	job := pendingJob()
	job.State = StateDead
	job.Attempts = 3
	job.LastError = "boom"
	now := job.UpdatedAt.Add(time.Minute)

	if err := job.ResetForRetry(now); err != nil {
		t.Fatalf("expected reset to succeed, got %v", err)
	}
	if job.State != StatePending || job.Attempts != 0 || job.LastError != "" {
		t.Fatalf("expected a clean pending job, got %+v", job)
	}

	if err := job.ResetForRetry(now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state error for non-dead job, got %v", err)
	}
}

func TestTouchKeepsUpdatedAtMonotonic(t *testing.T) {
	job := pendingJob()
	later := job.UpdatedAt.Add(time.Hour)
	job.UpdatedAt = later

	if err := job.MarkProcessing(job.CreatedAt.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if job.UpdatedAt.Before(later) {
		t.Fatalf("expected updated_at to stay at %s, got %s", later, job.UpdatedAt)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	job := pendingJob()
	clone := job.Clone()
	clone.State = StateDead
	clone.Attempts = 9

	if job.State != StatePending || job.Attempts != 0 {
		t.Fatal("mutating the clone changed the original")
	}
}
