// Package executor runs test items across a pool of workers, retrying
// partial failures and dropping workers whose devices stop responding.
//
// A Runner owns one worker (a device, a pod, a local slot). The executor
// creates one Runner per worker identity, sets them up in parallel, lets
// each pull items from a shared queue.TaskQueue until the queue drains, and
// tears them down again.
//
// # Basic Usage
//
//	exec := executor.New(factory, []string{"dut-1", "dut-2"},
//	    executor.WithMaxRetries(3),
//	    executor.WithLogger(logger),
//	)
//
//	results, err := exec.Run(ctx, items)
//
// # Retries
//
// RunTest returns a retry descriptor when some cases of an item failed.
// The executor then records a placeholder keeping only the passing cases
// of the attempt (Result.Retried is set) and queues the descriptor with the
// same try count. After MaxRetries retries the last attempt is recorded as
// is. An item therefore produces at most MaxRetries+1 entries.
//
// # Unresponsive Devices
//
// Errors that classify as transient (see util.Classify) never fail a run:
//
//   - during SetUp the worker is dropped
//   - during RunTest the task goes back to the queue and the worker stops
//   - during TearDown the error is logged
//
// A LivenessProbe is consulted before every attempt; a worker that fails it
// returns the task unstarted and stops.
//
// Any other error from RunTest is fatal: the task is requeued, the worker
// stops, and Run returns the error after every set-up worker was torn down.
//
// # No Runners Left
//
// When no worker survives setup, or every worker exits while tests remain
// queued, Run returns ErrNoRunners or ErrStrandedTasks. WithFailOnNoRunners
// (false) turns both into warnings; the recorded results are returned and
// the remaining tests are not run.
//
// # Results
//
// Results are plain values and can be summarized with Summarize, or folded
// into per-case outcomes with FinalStatuses, where later tries override
// earlier ones.
package executor
