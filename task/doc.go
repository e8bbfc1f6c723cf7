// Package task provides cancellable background work with progress
// estimation, and the bounded worker pools that run it.
//
// # Model
//
// A Task is created per asynchronous call. It moves through
// Pending -> Running -> Finished, or to Cancelled from either non-terminal
// state. Cancellation is strictly cooperative: a Running task keeps running
// until its body observes its context, or until a registered canceller halts
// the underlying hardware operation and reports success. The framework never
// kills a goroutine.
//
// Results propagate lazily: the body's outcome is stored on the task and
// only surfaces when Result is called. Done callbacks fire exactly once when
// the task reaches a terminal state, after which the submitter can drop the
// task and its result payload becomes collectable.
//
// A Progressive task additionally carries an evolving (start, end) time
// estimate with update callbacks, used to drive progress bars for long
// operations such as focus searches or stage moves.
//
// # Executor
//
// Executor runs tasks on a fixed worker pool and keeps its own FIFO record
// of submitted work, because the pool's queue alone cannot identify
// queued-but-not-started items for bulk cancellation. CancelAll cancels
// newest-first and blocks until every task that refused cancellation has
// finished on its own, so hardware is guaranteed quiet when it returns.
package task
