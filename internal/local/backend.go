// Package local runs test items as processes on this machine. Each worker
// is a slot, optionally tied to a device through its environment, probe
// command and exit code conventions.
package local

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/aryankumar/shardrun/internal/executor"
	"github.com/aryankumar/shardrun/internal/testlist"
	"github.com/aryankumar/shardrun/internal/util"
)

const (
	// DefaultUnresponsiveExitCode is the exit code (EX_TEMPFAIL) a test
	// command uses to report that its device went away
	DefaultUnresponsiveExitCode = 75

	// DefaultProbeTimeout bounds probe and cleanup commands
	DefaultProbeTimeout = 30 * time.Second

	defaultShell = "/bin/sh"
)

// Environment passed to every test command
const (
	EnvWorker  = "SHARDRUN_WORKER"
	EnvTest    = "SHARDRUN_TEST"
	EnvCases   = "SHARDRUN_CASES"
	EnvSummary = "SHARDRUN_SUMMARY"
	EnvRunID   = "SHARDRUN_RUN_ID"
)

// Worker describes one local slot
type Worker struct {
	Name string

	// ProbeCommand is a shell command that exits 0 while the worker's
	// device is usable. Empty means always alive.
	ProbeCommand string

	// Env is added to the environment of every command run for the worker
	Env map[string]string
}

// Option configures a Backend
type Option func(*Backend)

// WithUnresponsiveExitCode sets the exit code mapped to an unresponsive device
func WithUnresponsiveExitCode(code int) Option {
	return func(b *Backend) {
		b.unresponsiveExitCode = code
	}
}

// WithTestTimeout sets the attempt timeout for items that have none
func WithTestTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.testTimeout = d
	}
}

// WithProbeTimeout bounds probe and cleanup commands
func WithProbeTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.probeTimeout = d
	}
}

// WithShell sets the shell used for probe and cleanup commands
func WithShell(shell string) Option {
	return func(b *Backend) {
		b.shell = shell
	}
}

// WithRunID sets the identifier exported to test commands
func WithRunID(id string) Option {
	return func(b *Backend) {
		b.runID = id
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend creates runners, probes and hooks for local workers
type Backend struct {
	workers              map[string]Worker
	unresponsiveExitCode int
	testTimeout          time.Duration
	probeTimeout         time.Duration
	shell                string
	runID                string
	logger               *slog.Logger
}

// New creates a backend for the given workers
func New(workers []Worker, opts ...Option) *Backend {
	b := &Backend{
		workers:              make(map[string]Worker, len(workers)),
		unresponsiveExitCode: DefaultUnresponsiveExitCode,
		probeTimeout:         DefaultProbeTimeout,
		shell:                defaultShell,
	}
	for _, w := range workers {
		b.workers[w.Name] = w
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// NewRunner implements executor.RunnerFactory
func (b *Backend) NewRunner(ctx context.Context, worker string) (executor.Runner[testlist.Item], error) {
	w, ok := b.workers[worker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", util.ErrWorkerNotFound, worker)
	}
	return &Runner{backend: b, worker: w, logger: b.logger.With("worker", worker)}, nil
}

// Probe implements executor.LivenessProbe by running the worker's probe
// command.
func (b *Backend) Probe(ctx context.Context, worker string) bool {
	w, ok := b.workers[worker]
	if !ok {
		return false
	}
	if w.ProbeCommand == "" {
		return true
	}

	out, err := b.runShell(ctx, w.ProbeCommand, w.Env)
	if err != nil {
		b.logger.Debug("probe failed", "worker", worker, "error", err, "output", out)
		return false
	}
	return true
}

// CleanupHook returns a hook that runs command through the shell. An empty
// command yields a nil hook.
func (b *Backend) CleanupHook(command string) executor.Hook {
	if command == "" {
		return nil
	}
	return func(ctx context.Context) error {
		out, err := b.runShell(ctx, command, nil)
		if err != nil {
			return fmt.Errorf("cleanup command %q: %w (output: %s)", command, err, out)
		}
		return nil
	}
}

// runShell runs a short command through the shell, bounded by probeTimeout
func (b *Backend) runShell(ctx context.Context, command string, env map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.shell, "-c", command)
	cmd.Env = buildEnv(os.Environ(), env)
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return tail(out.String(), 512), err
}

// buildEnv appends extra variables, in order, to base
func buildEnv(base []string, extra ...map[string]string) []string {
	env := append([]string(nil), base...)
	for _, m := range extra {
		for k, v := range m {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// tail returns at most the last n bytes of s
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
