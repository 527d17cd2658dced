// Package command runs external renderers (PlantUML, wkhtmltopdf) as
// subprocesses with captured output and a bounded run time.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/docbook/internal/logfields"
)

// waitDelay bounds how long Run waits for output pipes after the process was killed.
const waitDelay = 5 * time.Second

// Result describes a finished process.
type Result struct {
	// Output is stdout followed by stderr.
	Output   string
	ExitCode int
}

// Success reports whether the process exited with status zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Runner abstracts command execution to enable testing without real subprocesses.
//
// A process that starts and exits, whatever its status, yields a nil error.
// Errors are reserved for processes that could not be started or were
// stopped by the context or timeout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args ...string) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return f(ctx, name, args...)
}

// ExecRunner implements Runner using os/exec.
type ExecRunner struct {
	// Timeout bounds each invocation; zero means only the context applies.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExecRunner{Timeout: timeout, Logger: logger}
}

// Run executes name with args and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- binaries are configured by the operator
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{Output: joinOutput(stdout.String(), stderr.String())}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s stopped after %s: %w", name, elapsed.Round(time.Millisecond), ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("starting %s: %w", name, err)
	}

	r.logger().Debug("Command finished",
		slog.String("command", name),
		slog.Int("exit_code", res.ExitCode),
		logfields.DurationMS(float64(elapsed.Microseconds())/1000))
	return res, nil
}

func (r *ExecRunner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func joinOutput(stdout, stderr string) string {
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	case strings.HasSuffix(stdout, "\n"):
		return stdout + stderr
	default:
		return stdout + "\n" + stderr
	}
}
