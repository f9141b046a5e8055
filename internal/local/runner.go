package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aryankumar/shardrun/internal/executor"
	"github.com/aryankumar/shardrun/internal/testlist"
	"github.com/aryankumar/shardrun/internal/util"
)

const (
	// maxLogBytes is how much command output is kept for a failing case
	maxLogBytes = 4096

	// waitDelay bounds how long a killed command may keep its output open
	waitDelay = 5 * time.Second
)

// Runner runs test commands for one local worker
type Runner struct {
	backend *Backend
	worker  Worker
	logger  *slog.Logger

	dir     string
	attempt int
}

// SetUp probes the worker and creates its scratch directory
func (r *Runner) SetUp(ctx context.Context) error {
	if !r.backend.Probe(ctx, r.worker.Name) {
		return util.NewDeviceUnresponsiveError(r.worker.Name, errors.New("probe command failed"))
	}

	dir, err := os.MkdirTemp("", "shardrun-"+safeName(r.worker.Name)+"-")
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	r.dir = dir

	r.logger.Debug("local worker ready", "dir", dir)
	return nil
}

// RunTest runs item's command and derives case results from its summary
// file or, failing that, from its exit status.
func (r *Runner) RunTest(ctx context.Context, item testlist.Item) (executor.Result, *testlist.Item, error) {
	if len(item.Command) == 0 {
		return executor.Result{}, nil, fmt.Errorf("%w: test %q has no command", util.ErrInvalidTestList, item.Name)
	}

	r.attempt++
	summaryPath := filepath.Join(r.dir, fmt.Sprintf("summary-%d.json", r.attempt))

	timeout := item.Timeout
	if timeout == 0 {
		timeout = r.backend.testTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, item.Command[0], item.Command[1:]...)
	cmd.Env = buildEnv(os.Environ(), r.worker.Env, item.Env, map[string]string{
		EnvWorker:  r.worker.Name,
		EnvTest:    item.Name,
		EnvCases:   strings.Join(item.Cases, ","),
		EnvSummary: summaryPath,
		EnvRunID:   r.backend.runID,
	})

	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	r.logger.Debug("running test", "test", item.String(), "timeout", timeout)

	started := time.Now()
	err := cmd.Run()
	result := executor.Result{
		Test:     item.Name,
		Started:  started,
		Duration: time.Since(started),
	}

	if ctx.Err() != nil {
		return result, nil, fmt.Errorf("test %s interrupted: %w", item.Name, ctx.Err())
	}

	var (
		status executor.Status
		log    string
	)
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		status = executor.StatusPass
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		status = executor.StatusTimeout
		log = fmt.Sprintf("timed out after %s\n%s", timeout, tail(out.String(), maxLogBytes))
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		if code == r.backend.unresponsiveExitCode {
			return result, nil, util.NewDeviceUnresponsiveError(r.worker.Name,
				fmt.Errorf("test %s exited with code %d", item.Name, code))
		}
		status = executor.StatusFail
		if code < 0 {
			status = executor.StatusCrash
		}
		log = fmt.Sprintf("%v\n%s", err, tail(out.String(), maxLogBytes))
	default:
		status = executor.StatusCrash
		log = err.Error()
	}

	summary, _ := os.ReadFile(summaryPath)
	cases, err := testlist.BuildCases(item, summary, status, log)
	if err != nil {
		r.logger.Warn("ignoring test summary", "test", item.Name, "error", err)
	}
	result.Cases = cases

	return result, testlist.Retry(item, result), nil
}

// TearDown removes the worker's scratch directory
func (r *Runner) TearDown(ctx context.Context) error {
	if r.dir == "" {
		return nil
	}
	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("failed to remove work directory: %w", err)
	}
	return nil
}

// safeName makes a worker name usable in a file name
func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
