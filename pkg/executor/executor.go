// Package executor runs job commands through the shell under a bounded
// wall-clock timeout. It holds no job state: the outcome of one run is
// a pure function of (command, timeout).
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/resilience"
)

// DefaultTimeout bounds a single command execution.
const DefaultTimeout = 300 * time.Second

// Outcome is the result of one command execution. A failed outcome
// always carries a non-empty Diagnostic.
type Outcome struct {
	Success    bool
	ExitCode   int
	Stdout     string
	Stderr     string
	Diagnostic string
}

// Executor runs commands via `sh -c` with a fixed timeout.
type Executor struct {
	timeout time.Duration
	log     logger.Logger
}

// New creates an executor. A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration, log logger.Logger) (*Executor, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		timeout: timeout,
		log:     log,
	}, nil
}

// Run executes the command and reports its outcome. Execution failures
// (non-zero exit, timeout, spawn failure) are part of the outcome, not
// errors: the caller's state machine absorbs them.
func (e *Executor) Run(ctx context.Context, command string) Outcome {
	var stdout, stderr bytes.Buffer
	var exitCode int

	err := resilience.WithTimeout(ctx, e.timeout, func(runCtx context.Context) error {
		cmd := exec.CommandContext(runCtx, "sh", "-c", command)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		cmd.Env = os.Environ()

		runErr := cmd.Run()
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return runErr
	})

	switch {
	case err == nil:
		return Outcome{
			Success:  true,
			ExitCode: 0,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}

	case errors.Is(err, resilience.ErrTimeout):
		// The leaked command is being killed through its context; its
		// output buffers are not safe to read here.
		e.log.WithContext(ctx).Warn("command execution timed out", "timeout", e.timeout)
		return Outcome{
			Success:    false,
			ExitCode:   -1,
			Diagnostic: fmt.Sprintf("execution timed out after %s", e.timeout),
		}

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Outcome{
				Success:    false,
				ExitCode:   exitCode,
				Stdout:     stdout.String(),
				Stderr:     stderr.String(),
				Diagnostic: failureDiagnostic(stderr.String(), exitCode),
			}
		}
		return Outcome{
			Success:    false,
			ExitCode:   -1,
			Diagnostic: fmt.Sprintf("failed to start command: %v", err),
		}
	}
}

// Timeout returns the configured per-execution wall-clock limit.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// failureDiagnostic prefers the command's own stderr as the recorded
// error, falling back to the exit code.
func failureDiagnostic(stderr string, exitCode int) string {
	if trimmed := strings.TrimSpace(stderr); trimmed != "" {
		return trimmed
	}
	return fmt.Sprintf("exit code %d", exitCode)
}
