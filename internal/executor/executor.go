package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aryankumar/shardrun/internal/queue"
	"github.com/aryankumar/shardrun/internal/util"
)

// DefaultMaxRetries is the number of retries a test item gets by default
const DefaultMaxRetries = 3

var (
	// ErrNoRunners is returned when no worker completed setup
	ErrNoRunners = errors.New("no runners available")

	// ErrStrandedTasks is returned when every worker exited with tests left
	ErrStrandedTasks = errors.New("tests left unexecuted")
)

// Run phases, used in logs, errors and metrics
const (
	phaseSetUp    = "setup"
	phaseRun      = "run"
	phaseTearDown = "teardown"
)

// Option configures an Executor
type Option func(*options)

type options struct {
	maxRetries      int
	probe           LivenessProbe
	cleanup         Hook
	sink            Sink
	logger          *slog.Logger
	metrics         *Metrics
	failOnNoRunners bool
	progress        func(completed, total int)
}

// WithMaxRetries sets how many times a test item is retried. Zero disables
// retries; negative values are treated as zero.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.maxRetries = n
	}
}

// WithLivenessProbe sets the check made before every attempt
func WithLivenessProbe(probe LivenessProbe) Option {
	return func(o *options) {
		o.probe = probe
	}
}

// WithCleanupHook sets the hook run before and after every run
func WithCleanupHook(hook Hook) Option {
	return func(o *options) {
		o.cleanup = hook
	}
}

// WithSink forwards every recorded result to sink as well
func WithSink(sink Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithFailOnNoRunners controls what happens when no worker is left to run
// the queued tests. When enabled (the default) Run returns ErrNoRunners or
// ErrStrandedTasks; when disabled it logs a warning and returns whatever
// was recorded.
func WithFailOnNoRunners(fail bool) Option {
	return func(o *options) {
		o.failOnNoRunners = fail
	}
}

// WithProgress sets a callback invoked each time a test item settles.
// It may be called from several goroutines at once.
func WithProgress(fn func(completed, total int)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// Executor runs test items across a pool of workers, retrying partial
// failures and isolating workers whose devices stop responding
type Executor[T any] struct {
	factory RunnerFactory[T]
	workers []string
	opts    options
	logger  *slog.Logger
}

// New creates an executor with one runner slot per worker identity
func New[T any](factory RunnerFactory[T], workers []string, opts ...Option) *Executor[T] {
	o := options{
		maxRetries:      DefaultMaxRetries,
		failOnNoRunners: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor[T]{
		factory: factory,
		workers: append([]string(nil), workers...),
		opts:    o,
		logger:  logger,
	}
}

// Workers returns the configured worker identities
func (e *Executor[T]) Workers() []string {
	return append([]string(nil), e.workers...)
}

// MaxRetries returns the retry limit
func (e *Executor[T]) MaxRetries() int {
	return e.opts.maxRetries
}

// worker pairs a runner with its identity
type worker[T any] struct {
	name   string
	runner Runner[T]
}

// run carries the state shared by the goroutines of one Run call
type run[T any] struct {
	queue     *queue.TaskQueue[T]
	collector *Collector
	total     int
	settled   atomic.Int32
}

// Run sets up every worker, drains items through them and tears them down.
//
// The cleanup hook runs before setup and again after teardown, and teardown
// runs for every worker whose setup succeeded, even when the execution
// phase failed. The returned results are all entries recorded before the
// error, if any.
func (e *Executor[T]) Run(ctx context.Context, items []T) (results []Result, err error) {
	startTime := time.Now()
	collector := NewCollector()

	// Cleanup must still happen after the caller's context is cancelled.
	cleanupCtx := context.WithoutCancel(ctx)

	e.runHook(cleanupCtx, "pre-run")
	defer e.runHook(cleanupCtx, "cleanup")

	e.logger.Info("setting up runners", "workers", len(e.workers))
	workers, err := e.setUpRunners(ctx)
	defer func() {
		if tdErr := e.tearDownRunners(cleanupCtx, workers); tdErr != nil {
			err = util.CombineErrors(err, tdErr)
		}
	}()
	if err != nil {
		return collector.Results(), fmt.Errorf("setting up runners: %w", err)
	}

	e.logger.Info("runners ready",
		"active", len(workers),
		"dropped", len(e.workers)-len(workers))

	if len(workers) == 0 && len(items) > 0 {
		if e.opts.failOnNoRunners {
			return collector.Results(), fmt.Errorf("%w: all %d workers failed setup", ErrNoRunners, len(e.workers))
		}
		e.logger.Warn("no runners available, tests will not run", "tests", len(items))
	}

	r := &run[T]{
		queue:     queue.New(items...),
		collector: collector,
		total:     len(items),
	}

	err = e.runTests(ctx, r, workers)

	if inFlight := r.queue.InFlight(); err == nil && inFlight > 0 {
		if e.opts.failOnNoRunners {
			err = fmt.Errorf("%w: %d tests still queued after every worker exited", ErrStrandedTasks, inFlight)
		} else {
			e.logger.Warn("every worker exited with tests still queued", "tests", inFlight)
		}
	}

	e.logger.Info("test execution finished",
		"tests", len(items),
		"entries", collector.Len(),
		"duration", time.Since(startTime))

	return collector.Results(), err
}

// runHook calls the cleanup hook, logging any failure
func (e *Executor[T]) runHook(ctx context.Context, stage string) {
	if e.opts.cleanup == nil {
		return
	}
	if err := e.opts.cleanup(ctx); err != nil {
		e.logger.Warn("cleanup hook failed", "stage", stage, "error", err)
	}
}

// setUpRunners builds and sets up one runner per worker in parallel.
// Workers whose setup fails transiently are dropped. On a fatal error the
// workers already set up are still returned so they can be torn down.
func (e *Executor[T]) setUpRunners(ctx context.Context) ([]*worker[T], error) {
	slots := make([]*worker[T], len(e.workers))

	var g errgroup.Group
	for i, name := range e.workers {
		g.Go(func() error {
			runner, err := e.factory(ctx, name)
			if err == nil {
				err = runner.SetUp(ctx)
			}

			if err != nil {
				e.opts.metrics.RecordRunnerFailure(phaseSetUp)
				if util.IsTransient(err) {
					e.logger.Warn("failed to set up worker, dropping it",
						"worker", name,
						"error", err)
					return nil
				}
				return util.WrapWorkerError(name, phaseSetUp, err)
			}

			slots[i] = &worker[T]{name: name, runner: runner}
			e.logger.Debug("worker set up", "worker", name)
			return nil
		})
	}
	err := g.Wait()

	// Keep configuration order for deterministic logs and teardown.
	workers := make([]*worker[T], 0, len(slots))
	for _, w := range slots {
		if w != nil {
			workers = append(workers, w)
		}
	}
	e.opts.metrics.SetRunnersActive(len(workers))

	return workers, err
}

// tearDownRunners tears down every worker in parallel. Transient failures
// are logged; other failures are combined into the returned error.
func (e *Executor[T]) tearDownRunners(ctx context.Context, workers []*worker[T]) error {
	if len(workers) == 0 {
		return nil
	}

	errs := make([]error, len(workers))

	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			if err := w.runner.TearDown(ctx); err != nil {
				e.opts.metrics.RecordRunnerFailure(phaseTearDown)
				if util.IsTransient(err) {
					e.logger.Warn("device unresponsive during teardown",
						"worker", w.name,
						"error", err)
					return nil
				}
				errs[i] = util.WrapWorkerError(w.name, phaseTearDown, err)
				return nil
			}
			e.logger.Debug("worker torn down", "worker", w.name)
			return nil
		})
	}
	g.Wait()

	e.opts.metrics.SetRunnersActive(0)
	return util.CombineErrors(errs...)
}

// runTests starts one consume loop per worker and waits for all of them.
func (e *Executor[T]) runTests(ctx context.Context, r *run[T], workers []*worker[T]) error {
	if len(workers) == 0 {
		return nil
	}

	// Idle workers block in Pop; cancellation has to wake them.
	stop := make(chan struct{})
	var watcher sync.WaitGroup
	watcher.Add(1)
	go func() {
		defer watcher.Done()
		select {
		case <-ctx.Done():
			r.queue.Abort()
		case <-stop:
		}
	}()

	errs := make([]error, len(workers))

	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			errs[i] = e.consume(ctx, r, w)
			return errs[i]
		})
	}
	g.Wait()

	close(stop)
	watcher.Wait()

	if err := util.CombineErrors(errs...); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %d tests not run: %v", util.ErrCancelled, r.queue.InFlight(), ctx.Err())
	}
	return nil
}

// consume pulls tasks until the queue drains or the worker has to stop.
func (e *Executor[T]) consume(ctx context.Context, r *run[T], w *worker[T]) error {
	e.logger.Debug("worker started", "worker", w.name)

	for task := range r.queue.All() {
		stop, err := e.runTask(ctx, r, w, task)
		if stop {
			return err
		}
	}

	e.logger.Debug("worker finished (no more tests)", "worker", w.name)
	return nil
}

// runTask makes one attempt at task on w. It reports whether the worker
// must stop consuming, and the fatal error that stopped it, if any.
// The popped task is marked completed exactly once whatever happens.
func (e *Executor[T]) runTask(ctx context.Context, r *run[T], w *worker[T], task *queue.Task[T]) (stop bool, err error) {
	defer r.queue.MarkTaskCompleted()

	if ctx.Err() != nil {
		r.queue.Add(task)
		return true, nil
	}

	if e.opts.probe != nil && !e.opts.probe(ctx, w.name) {
		e.logger.Warn("worker is no longer responsive, returning test to queue",
			"worker", w.name,
			"test", task.Item)
		e.opts.metrics.RecordAttempt(OutcomeRequeued, 0)
		e.opts.metrics.RecordRunnerFailure(phaseRun)
		r.queue.Add(task)
		return true, nil
	}

	started := time.Now()
	result, retry, err := safeRunTest(ctx, w.runner, task.Item)
	if err != nil {
		// The original task goes back untouched, tries included.
		r.queue.Add(task)

		switch {
		case ctx.Err() != nil:
			return true, nil
		case util.IsTransient(err):
			e.logger.Warn("device unresponsive, returning test to queue",
				"worker", w.name,
				"test", task.Item,
				"error", err)
			e.opts.metrics.RecordAttempt(OutcomeRequeued, time.Since(started))
			e.opts.metrics.RecordRunnerFailure(phaseRun)
			return true, nil
		default:
			e.logger.Error("unexpected error running test",
				"worker", w.name,
				"test", task.Item,
				"error", err)
			e.opts.metrics.RecordAttempt(OutcomeError, time.Since(started))
			return true, util.WrapWorkerError(w.name, phaseRun, err)
		}
	}

	task.Tries++
	result.Worker = w.name
	result.Try = task.Tries
	if result.Started.IsZero() {
		result.Started = started
	}
	if result.Duration == 0 {
		result.Duration = time.Since(started)
	}

	if retry != nil && task.Tries <= e.opts.maxRetries {
		e.record(r, result.PassedOnly())
		e.opts.metrics.RecordAttempt(OutcomeRetried, result.Duration)
		e.opts.metrics.RecordRetry()
		e.logger.Warn("will retry test",
			"worker", w.name,
			"test", *retry,
			"try", task.Tries)
		r.queue.Add(&queue.Task[T]{Item: *retry, Tries: task.Tries})
		return false, nil
	}

	e.record(r, result)
	if result.Passed() {
		e.opts.metrics.RecordAttempt(OutcomePassed, result.Duration)
	} else {
		e.opts.metrics.RecordAttempt(OutcomeFailed, result.Duration)
	}

	completed := int(r.settled.Add(1))
	e.logger.Debug("test settled",
		"worker", w.name,
		"test", result.Test,
		"passed", result.Passed(),
		"tries", task.Tries,
		"progress", fmt.Sprintf("%d/%d", completed, r.total))
	if e.opts.progress != nil {
		e.opts.progress(completed, r.total)
	}

	return false, nil
}

// record adds a result to the run's collector and the configured sink
func (e *Executor[T]) record(r *run[T], result Result) {
	r.collector.Add(result)
	if e.opts.sink != nil {
		e.opts.sink.Add(result)
	}
}

// safeRunTest turns a runner panic into a fatal error so the task is
// requeued and the worker's siblings still get torn down.
func safeRunTest[T any](ctx context.Context, runner Runner[T], item T) (result Result, retry *T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("runner panicked: %v", p)
		}
	}()
	return runner.RunTest(ctx, item)
}
