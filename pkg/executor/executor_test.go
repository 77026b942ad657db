package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/queuectl/queuectl/pkg/observability/logger"
	"github.com/queuectl/queuectl/pkg/testutil"
)

type executorTestLogger struct{}

func (l *executorTestLogger) Debug(string, ...any) {}
func (l *executorTestLogger) Info(string, ...any)  {}
func (l *executorTestLogger) Warn(string, ...any)  {}
func (l *executorTestLogger) Error(string, ...any) {}
func (l *executorTestLogger) With(...any) logger.Logger {
	return l
}
func (l *executorTestLogger) WithContext(context.Context) logger.Logger {
	return l
}

func newTestExecutor(t *testing.T, timeout time.Duration) *Executor {
	t.Helper()
	exec, err := New(timeout, &executorTestLogger{})
	if err != nil {
		t.Fatal(err)
	}
	return exec
}

func TestRunSuccess(t *testing.T) {
	exec := newTestExecutor(t, 10*time.Second)

	outcome := exec.Run(context.Background(), "echo hello")
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", outcome.ExitCode)
	}
	if strings.TrimSpace(outcome.Stdout) != "hello" {
		t.Fatalf("expected stdout captured, got %q", outcome.Stdout)
	}
	if outcome.Diagnostic != "" {
		t.Fatalf("expected empty diagnostic on success, got %q", outcome.Diagnostic)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	exec := newTestExecutor(t, 10*time.Second)

	outcome := exec.Run(context.Background(), "exit 3")
	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", outcome.ExitCode)
	}
	if outcome.Diagnostic != "exit code 3" {
		t.Fatalf("expected exit code diagnostic, got %q", outcome.Diagnostic)
	}
}

func TestRunPrefersStderrDiagnostic(t *testing.T) {
	exec := newTestExecutor(t, 10*time.Second)

	outcome := exec.Run(context.Background(), "echo broken pipe >&2; exit 1")
	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.Diagnostic != "broken pipe" {
		t.Fatalf("expected stderr as diagnostic, got %q", outcome.Diagnostic)
	}
}

func TestRunShellPipeline(t *testing.T) {
	exec := newTestExecutor(t, 10*time.Second)

	outcome := exec.Run(context.Background(), "printf 'a\\nb\\nc\\n' | wc -l")
	if !outcome.Success {
		t.Fatalf("expected pipeline to succeed, got %+v", outcome)
	}
	if strings.TrimSpace(outcome.Stdout) != "3" {
		t.Fatalf("expected pipeline output, got %q", outcome.Stdout)
	}
}

func TestRunTimeout(t *testing.T) {
	testutil.SkipIfShort(t)
	exec := newTestExecutor(t, 100*time.Millisecond)

	start := time.Now()
	outcome := exec.Run(context.Background(), "sleep 5")
	if outcome.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(outcome.Diagnostic, "timed out") {
		t.Fatalf("expected timeout diagnostic, got %q", outcome.Diagnostic)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run did not return promptly after timeout, took %s", elapsed)
	}
}

func TestNewDefaultsTimeout(t *testing.T) {
	exec := newTestExecutor(t, 0)
	if exec.Timeout() != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", exec.Timeout())
	}
}
