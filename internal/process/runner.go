package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// outputLimit caps captured stdout. get_clients on a busy radio is a few KB.
const outputLimit = 1 << 20

// Config holds configuration for a one-shot helper command.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable, resolved through PATH when not absolute.
	Binary string

	// Timeout bounds a single invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string
}

// DefaultTimeout is applied when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner executes a helper binary to completion and returns its stdout.
//
// Each invocation runs in its own process group so a timeout kills any
// children the helper spawned as well.
type Runner struct {
	config Config
	logger Logger
}

// NewRunner creates a runner with the given configuration.
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	return &Runner{
		config: cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run executes the binary with args and waits for it to exit.
//
// Parameters:
//   - ctx: Cancels the invocation early; the configured timeout still applies
//   - args: Command-line arguments
//
// Returns:
//   - []byte: Captured stdout
//   - error: ErrTimeout, ErrExited (non-zero exit, stderr attached), or a start failure
func (r *Runner) Run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.config.Binary, args...) //nolint:gosec // Binary comes from operator config

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative PID signals the whole group created via Setpgid.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	if r.config.Env != nil {
		cmd.Env = append(cmd.Environ(), r.config.Env...)
	}

	stdout := &limitedBuffer{limit: outputLimit}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running helper",
		"name", r.config.Name,
		"binary", r.config.Binary,
		"args", args,
	)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, r.config.Name, elapsed.Round(time.Millisecond))
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", r.config.Name, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s: exit status %d: %s",
				ErrExited, r.config.Name, exitErr.ExitCode(), bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("starting %s: %w", r.config.Name, err)
	}

	if stdout.truncated {
		r.logger.Warn("helper output truncated",
			"name", r.config.Name,
			"limit", outputLimit,
		)
	}

	r.logger.Debug("helper finished",
		"name", r.config.Name,
		"duration", elapsed,
		"bytes", stdout.Len(),
	)

	return stdout.Bytes(), nil
}

// limitedBuffer discards writes past limit while still reporting success,
// so a chatty helper cannot block on a full pipe.
type limitedBuffer struct {
	bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.truncated = true
		b.Buffer.Write(p[:room])
		return len(p), nil
	}
	return b.Buffer.Write(p)
}
