// Package run implements the run command, which executes a test list on
// the selected workers.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aryankumar/shardrun/internal/cli/session"
	"github.com/aryankumar/shardrun/internal/config"
	"github.com/aryankumar/shardrun/internal/executor"
	"github.com/aryankumar/shardrun/internal/testlist"
	"github.com/aryankumar/shardrun/internal/util"
)

// metricsNamespace prefixes every exported metric
const metricsNamespace = "shardrun"

// Options holds the flags of the run command
type Options struct {
	TestsFile       string
	Backend         string
	MaxRetries      int
	FailOnNoRunners bool
	MetricsFile     string
	ShardIndex      int
	TotalShards     int
	ShardStrategy   string
	Selector        string
	Wide            bool
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a test list across the worker pool",
		Long: `Run every test in a test list on a pool of workers.

Each worker takes the next test from a shared queue. Cases that fail are
retried, on whichever worker is free, up to --max-retries times. A worker
whose device stops responding is dropped and its test goes back to the queue
without using up a retry.

The command exits non-zero when the run fails or when any case did not
finally pass or skip.`,
		Example: `  # Run on every enabled worker from the config file
  shardrun run --tests tests.yaml

  # Run on two emulators with one retry
  shardrun run --tests tests.yaml --workers emulator-5554,emulator-5556 --max-retries 1

  # Run shard 2 of 4 on Kubernetes workers and export metrics
  shardrun run --tests tests.yaml --backend kube --shard-index 2 --total-shards 4 \
    --metrics-file /var/lib/node_exporter/shardrun.prom`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TestsFile, "tests", "", "test list file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "backend for every worker (local, kube); default per worker config")
	cmd.Flags().IntVar(&opts.MaxRetries, "max-retries", config.DefaultMaxRetries, "retries per test after partial failures")
	cmd.Flags().BoolVar(&opts.FailOnNoRunners, "fail-on-no-runners", true, "fail when no worker is left to run queued tests")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	cmd.Flags().IntVar(&opts.ShardIndex, "shard-index", 0, "0-based index of the static shard to run")
	cmd.Flags().IntVar(&opts.TotalShards, "total-shards", 1, "number of static shards")
	cmd.Flags().StringVar(&opts.ShardStrategy, "shard-strategy", string(testlist.StrategyAlpha), "shard strategy (alpha, hash)")
	cmd.Flags().StringVarP(&opts.Selector, "selector", "l", "", "only use workers with these labels (key=value,...)")
	cmd.Flags().BoolVar(&opts.Wide, "wide", false, "show failed cases and logs")
	_ = cmd.MarkFlagRequired("tests")

	return cmd
}

func runTests(ctx context.Context, cmd *cobra.Command, opts *Options) error {
	s, err := session.New()
	if err != nil {
		return err
	}
	logger := s.Logger
	defaults := s.Defaults()

	items, err := loadItems(opts)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		logger.Info("shard has no tests", "index", opts.ShardIndex, "total", opts.TotalShards)
	}

	backend := opts.Backend
	if backend != "" && backend != config.BackendLocal && backend != config.BackendKube {
		return fmt.Errorf("%w: unknown backend %q (want local or kube)", util.ErrInvalidConfig, backend)
	}

	selector, err := session.ParseSelector(opts.Selector)
	if err != nil {
		return err
	}
	workers, err := s.SelectWorkers(selector)
	if err != nil {
		return err
	}

	formatter, err := s.Formatter(cmd, opts.Wide)
	if err != nil {
		return err
	}

	fleet := s.NewFleet(workers, backend, s.TestTimeout(cmd))
	defer fleet.Close()

	maxRetries := defaults.MaxRetries
	if cmd.Flags().Changed("max-retries") {
		maxRetries = opts.MaxRetries
	}
	failOnNoRunners := defaults.FailOnNoRunners
	if cmd.Flags().Changed("fail-on-no-runners") {
		failOnNoRunners = opts.FailOnNoRunners
	}

	execOpts := []executor.Option{
		executor.WithMaxRetries(maxRetries),
		executor.WithFailOnNoRunners(failOnNoRunners),
		executor.WithLivenessProbe(fleet.Probe),
		executor.WithLogger(logger),
		executor.WithSink(executor.SinkFunc(func(r executor.Result) {
			logger.Debug("result recorded",
				"test", r.Test,
				"worker", r.Worker,
				"try", r.Try,
				"status", r.Status(),
				"retried", r.Retried)
		})),
		executor.WithProgress(func(completed, total int) {
			logger.Info("test settled", "completed", completed, "total", total)
		}),
	}
	if defaults.CleanupCommand != "" {
		execOpts = append(execOpts, executor.WithCleanupHook(fleet.CleanupHook(defaults.CleanupCommand)))
	}

	var registry *prometheus.Registry
	if opts.MetricsFile != "" {
		registry = prometheus.NewRegistry()
		execOpts = append(execOpts, executor.WithMetrics(executor.NewMetrics(metricsNamespace, registry)))
	}

	logger.Info("starting run",
		"run_id", fleet.RunID(),
		"tests", len(items),
		"workers", len(workers),
		"max_retries", maxRetries)

	started := time.Now()
	results, runErr := executor.New[testlist.Item](fleet.NewRunner, workers, execOpts...).Run(ctx, items)

	logger.Info("run finished",
		"run_id", fleet.RunID(),
		"entries", len(results),
		"duration", time.Since(started).Round(time.Millisecond))

	if registry != nil {
		if err := writeMetrics(opts.MetricsFile, registry); err != nil {
			logger.Warn("failed to write metrics", "file", opts.MetricsFile, "error", err)
		}
	}

	if len(results) > 0 || runErr == nil {
		if err := formatter.FormatResults(cmd.OutOrStdout(), results); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if !executor.AllPassed(results) {
		return util.ErrTestsFailed
	}
	return nil
}

// loadItems reads the test list and keeps the requested static shard
func loadItems(opts *Options) ([]testlist.Item, error) {
	strategy, err := testlist.ParseStrategy(opts.ShardStrategy)
	if err != nil {
		return nil, err
	}

	list, err := testlist.Load(opts.TestsFile)
	if err != nil {
		return nil, err
	}
	if opts.TotalShards <= 1 && opts.ShardIndex == 0 {
		return list.Tests, nil
	}

	shard, err := testlist.Split(list.Tests, opts.ShardIndex, opts.TotalShards, strategy)
	if err != nil {
		return nil, err
	}
	slog.Debug("running static shard",
		"index", shard.Index,
		"total", shard.Total,
		"included", len(shard.Included))
	return shard.Included, nil
}

// writeMetrics writes the registry in the node-exporter textfile format
func writeMetrics(path string, registry *prometheus.Registry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	return prometheus.WriteToTextfile(path, registry)
}
