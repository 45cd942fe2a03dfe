// Package processor invokes the external SAR processor modules.
//
// Every call goes through an Invoker. Runner is the subprocess adapter: it
// resolves a Module against the processor home directory and runs it with
// the given arguments in a working directory. Orchestration code builds
// typed requests (CreateDEM, BackProjectScene, ...) and never assembles
// command lines itself.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ErrProcessorHomeUnset is returned when no processor home directory is configured.
var ErrProcessorHomeUnset = errors.New("PROC_HOME environment variable is not set. Location of processor modules is unknown")

// DefaultMaxOutput is the number of trailing stderr bytes kept for errors.
const DefaultMaxOutput = 8 * 1024

// Invoker runs typed processor requests. It is the single point through
// which the pipeline reaches the external processor.
type Invoker interface {
	Invoke(ctx context.Context, req Request, workDir string) error
}

// ExitError reports a module that exited non-zero.
type ExitError struct {
	Module Module
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("processor module %s exited with status %d", e.Module, e.Code)
	}
	return fmt.Sprintf("processor module %s exited with status %d: %s", e.Module, e.Code, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner executes processor modules as subprocesses.
type Runner struct {
	home      string
	timeout   time.Duration
	maxOutput int
	stdout    io.Writer
	stderr    io.Writer
	logger    *slog.Logger
}

// NewRunner creates a runner rooted at home. A zero timeout disables the
// per-invocation deadline.
func NewRunner(home string, timeout time.Duration) (*Runner, error) {
	if home == "" {
		return nil, ErrProcessorHomeUnset
	}
	return &Runner{
		home:      home,
		timeout:   timeout,
		maxOutput: DefaultMaxOutput,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		logger:    slog.Default(),
	}, nil
}

// WithLogger sets a custom logger for the runner
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithMaxOutput sets how many trailing stderr bytes an ExitError carries.
func (r *Runner) WithMaxOutput(n int) *Runner {
	if n > 0 {
		r.maxOutput = n
	}
	return r
}

// WithOutput redirects the modules' stdout and stderr streams.
func (r *Runner) WithOutput(stdout, stderr io.Writer) *Runner {
	r.stdout = stdout
	r.stderr = stderr
	return r
}

// Home returns the processor home directory.
func (r *Runner) Home() string {
	return r.home
}

// Path resolves a module against the home directory.
func (r *Runner) Path(module Module) string {
	return filepath.Join(r.home, filepath.FromSlash(string(module)))
}

// Invoke implements Invoker.
func (r *Runner) Invoke(ctx context.Context, req Request, workDir string) error {
	var env []string
	if er, ok := req.(EnvRequest); ok {
		env = er.Environ()
	}
	return r.Call(ctx, req.Module(), req.Args(), workDir, env)
}

// Call runs module with args in workDir. env entries are appended to the
// parent environment of the child only.
func (r *Runner) Call(ctx context.Context, module Module, args []string, workDir string, env []string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Path(module), args...)
	cmd.Dir = workDir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	tail := &tailWriter{max: r.maxOutput}
	cmd.Stdout = r.stdout
	cmd.Stderr = io.MultiWriter(r.stderr, tail)

	r.logger.InfoContext(ctx, "calling processor module",
		slog.String("module", string(module)),
		slog.Any("args", args),
		slog.String("work_dir", workDir),
	)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	invocationDuration.WithLabelValues(string(module)).Observe(duration.Seconds())

	if err == nil {
		invocations.WithLabelValues(string(module), "success").Inc()
		r.logger.InfoContext(ctx, "processor module finished",
			slog.String("module", string(module)),
			slog.Duration("duration", duration),
		)
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		invocations.WithLabelValues(string(module), "timeout").Inc()
		r.logger.ErrorContext(ctx, "processor module timed out",
			slog.String("module", string(module)),
			slog.Duration("timeout", r.timeout),
		)
		return fmt.Errorf("processor module %s timed out after %s: %w", module, r.timeout, ctx.Err())
	}

	invocations.WithLabelValues(string(module), "failure").Inc()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.ErrorContext(ctx, "processor module failed",
			slog.String("module", string(module)),
			slog.Int("exit_code", exitErr.ExitCode()),
			slog.Duration("duration", duration),
		)
		return &ExitError{
			Module: module,
			Code:   exitErr.ExitCode(),
			Stderr: string(bytes.TrimSpace(tail.Bytes())),
			Err:    err,
		}
	}

	return fmt.Errorf("failed to run processor module %s: %w", module, err)
}

// Output runs a query module and returns its trimmed stdout.
func (r *Runner) Output(ctx context.Context, module Module, args []string, workDir string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Path(module), args...)
	cmd.Dir = workDir
	tail := &tailWriter{max: r.maxOutput}
	cmd.Stderr = tail

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Module: module,
				Code:   exitErr.ExitCode(),
				Stderr: string(bytes.TrimSpace(tail.Bytes())),
				Err:    err,
			}
		}
		return nil, fmt.Errorf("failed to run processor module %s: %w", module, err)
	}
	return bytes.TrimSpace(out), nil
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	max int
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.max; over > 0 {
		w.buf = w.buf[over:]
	}
	return len(p), nil
}

func (w *tailWriter) Bytes() []byte {
	return w.buf
}
