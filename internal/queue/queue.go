// Package queue provides the blocking work queue shared by shardrun's
// worker goroutines.
//
// A TaskQueue tracks how many tasks are "in flight": added and not yet
// marked completed, whether they are still pending or being executed. The
// queue is drained exactly when that count reaches zero, which lets workers
// put tasks back (retries, dead devices) while other workers are still
// blocked waiting for work.
//
// Every task obtained from Pop (or from ranging over All) must be followed
// by exactly one MarkTaskCompleted call. A worker that requeues a task must
// call Add before MarkTaskCompleted so the in-flight count never touches
// zero while a retry is pending.
package queue

import (
	"iter"
	"sync"
)

// Task wraps one test item and the number of attempts already made on it.
// Retried items are new Task values.
type Task[T any] struct {
	Item  T
	Tries int
}

// TaskQueue is a multi-producer, multi-consumer queue of tasks.
// The zero value is not usable; use New.
type TaskQueue[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	// pending holds tasks not yet claimed by a worker
	pending []*Task[T]

	// inFlight counts pending tasks plus popped-but-not-completed tasks
	inFlight int

	aborted bool
}

// New returns a queue holding a fresh task (Tries == 0) for each item.
func New[T any](items ...T) *TaskQueue[T] {
	q := &TaskQueue[T]{
		pending: make([]*Task[T], 0, len(items)),
	}
	q.cond = sync.NewCond(&q.mu)

	for _, item := range items {
		q.pending = append(q.pending, &Task[T]{Item: item})
	}
	q.inFlight = len(items)

	return q
}

// Add inserts task and wakes a waiting consumer. It never blocks.
func (q *TaskQueue[T]) Add(task *Task[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, task)
	q.inFlight++
	q.cond.Signal()
}

// MarkTaskCompleted records that one popped task has been disposed of.
// When the last in-flight task completes, every blocked Pop returns.
//
// It must be called exactly once per popped task; calling it more often
// than tasks were popped corrupts the in-flight count.
func (q *TaskQueue[T]) MarkTaskCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.inFlight--
	if q.inFlight == 0 {
		q.cond.Broadcast()
	}
}

// Pop blocks until a task is available or the queue is drained.
// It returns false once no task is in flight, or after Abort.
// Pop does not change the in-flight count.
func (q *TaskQueue[T]) Pop() (*Task[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.aborted || q.inFlight == 0 {
			return nil, false
		}

		if n := len(q.pending); n > 0 {
			task := q.pending[n-1]
			q.pending[n-1] = nil
			q.pending = q.pending[:n-1]
			return task, true
		}

		// Another consumer took the last pending task but it is still in
		// flight and may come back as a retry.
		q.cond.Wait()
	}
}

// All returns a single-pass sequence of tasks. Many goroutines may range
// over the same queue at once; each receives a disjoint subset. Breaking
// out of the loop leaves the current task's completion to the caller.
func (q *TaskQueue[T]) All() iter.Seq[*Task[T]] {
	return func(yield func(*Task[T]) bool) {
		for {
			task, ok := q.Pop()
			if !ok {
				return
			}
			if !yield(task) {
				return
			}
		}
	}
}

// Abort wakes every consumer and makes all further Pop calls return false.
// Tasks that are still in flight stay counted.
func (q *TaskQueue[T]) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.aborted = true
	q.cond.Broadcast()
}

// InFlight returns the number of tasks added and not yet completed.
func (q *TaskQueue[T]) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Pending returns the number of tasks waiting to be popped.
func (q *TaskQueue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drained reports whether no task is in flight.
func (q *TaskQueue[T]) Drained() bool {
	return q.InFlight() == 0
}
