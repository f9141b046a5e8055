package executor

import "context"

// Runner executes tests on one worker slot, such as a device, a cluster or
// a local process slot. Each runner is owned by a single goroutine.
//
// Errors classified as transient by util.Classify (for example a
// util.DeviceUnresponsiveError) drop the worker without failing the run.
// Any other error is fatal for the phase it occurs in.
type Runner[T any] interface {
	// SetUp prepares the worker. A runner whose SetUp fails is never torn down.
	SetUp(ctx context.Context) error

	// RunTest runs one test item. A non-nil retry describes what still
	// needs to run (for example, only the failing cases) and is nil when
	// the item fully passed.
	RunTest(ctx context.Context, item T) (result Result, retry *T, err error)

	// TearDown releases the worker. It is called once for every runner
	// whose SetUp succeeded.
	TearDown(ctx context.Context) error
}

// RunnerFactory builds the runner for a worker identity.
// It is called concurrently, once per worker.
type RunnerFactory[T any] func(ctx context.Context, worker string) (Runner[T], error)

// LivenessProbe reports whether a worker's backing resource still responds.
type LivenessProbe func(ctx context.Context, worker string) bool

// Hook is an idempotent side effect run before and after a run, such as
// killing a stale host-side coordinator process.
type Hook func(ctx context.Context) error

// Sink receives results from any goroutine
type Sink interface {
	Add(result Result)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(result Result)

// Add calls f(result)
func (f SinkFunc) Add(result Result) {
	f(result)
}
