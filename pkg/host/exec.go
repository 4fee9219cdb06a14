package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external commands. Output is combined stdout/stderr and is
// returned even when the command fails.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and wraps failures with the command output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %v failed: %w output=%s", name, args, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// ExitCode extracts the process exit code from a Runner error.
func ExitCode(err error) (int, bool) {
	var ee interface{ ExitCode() int }
	if errors.As(err, &ee) {
		return ee.ExitCode(), true
	}
	return 0, false
}

// ExitError is a Runner error for a process that ran and exited non-zero.
// Fake runners return it to mimic exec.ExitError.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int { return e.Code }

func runnerOrDefault(r Runner) Runner {
	if r == nil {
		return ExecRunner{}
	}
	return r
}
