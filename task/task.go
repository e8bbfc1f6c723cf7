package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/delmic/odemis-sub003/errors"
)

// Canceller attempts to cooperatively stop a running task, typically by
// halting the hardware operation it is performing. It returns true when the
// task was actually stopped; cancellation of a running task succeeds only
// in that case.
type Canceller func() bool

// DoneCallback is invoked exactly once when a task reaches a terminal state.
type DoneCallback[T any] func(*Task[T])

// Task is a unit of asynchronous work with cooperative cancellation. Its
// result-or-error slot is set at most once; waiters block in Result until a
// terminal state is reached.
type Task[T any] struct {
	mu        sync.Mutex
	status    Status
	result    T
	err       error
	canceller Canceller
	doneCbs   []DoneCallback[T]

	created time.Time
	started time.Time
	ended   time.Time

	done      chan struct{} // closed on any terminal transition
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger *slog.Logger
}

// TaskOption configures a task at creation time.
type TaskOption[T any] func(*Task[T])

// WithCanceller registers the cooperative canceller consulted when Cancel
// is called on a running task.
func WithCanceller[T any](canceller Canceller) TaskOption[T] {
	return func(t *Task[T]) {
		t.canceller = canceller
	}
}

// WithTaskLogger sets the task logger. Defaults to slog.Default().
func WithTaskLogger[T any](logger *slog.Logger) TaskOption[T] {
	return func(t *Task[T]) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTask creates a pending task.
func NewTask[T any](opts ...TaskOption[T]) *Task[T] {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task[T]{
		status:    StatusPending,
		created:   time.Now(),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Status returns the task's current lifecycle state.
func (t *Task[T]) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Context returns the task's cancellation token. The task body must watch
// it: the context is cancelled when the task is cancelled, and also once it
// finishes, so resources tied to it are released either way.
func (t *Task[T]) Context() context.Context {
	return t.ctx
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// SetCanceller replaces the cooperative canceller. Only consulted while the
// task is running.
func (t *Task[T]) SetCanceller(canceller Canceller) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canceller = canceller
}

// markRunning transitions Pending to Running. Returns false when the task
// is no longer pending (already cancelled), in which case the body must not
// run.
func (t *Task[T]) markRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return false
	}
	t.status = StatusRunning
	t.started = time.Now()
	return true
}

// terminateLocked moves the task to a terminal state. Caller holds t.mu and
// must fire the returned callbacks after unlocking.
func (t *Task[T]) terminateLocked(status Status) []DoneCallback[T] {
	t.status = status
	t.ended = time.Now()
	close(t.done)
	t.ctxCancel()
	cbs := t.doneCbs
	t.doneCbs = nil
	return cbs
}

func (t *Task[T]) fire(cbs []DoneCallback[T]) {
	for _, cb := range cbs {
		t.fireOne(cb)
	}
}

func (t *Task[T]) fireOne(cb DoneCallback[T]) {
	defer func() {
		if rec := recover(); rec != nil {
			t.logger.Error("task done-callback panicked", slog.Any("panic", rec))
		}
	}()
	cb(t)
}

// Cancel requests cancellation. It returns false if the task already
// finished, true (as a no-op) if it is already cancelled, and transitions a
// pending task directly to Cancelled. For a running task the registered
// canceller decides: with no canceller, or a canceller that reports
// failure, Cancel returns false and the task keeps running.
func (t *Task[T]) Cancel() bool {
	t.mu.Lock()
	switch t.status {
	case StatusFinished:
		t.mu.Unlock()
		return false

	case StatusCancelled:
		t.mu.Unlock()
		return true

	case StatusPending:
		cbs := t.terminateLocked(StatusCancelled)
		t.mu.Unlock()
		t.fire(cbs)
		return true
	}

	// Running: consult the canceller outside the lock, it may block on
	// hardware.
	canceller := t.canceller
	t.mu.Unlock()

	if canceller == nil || !canceller() {
		return false
	}

	t.mu.Lock()
	if t.status != StatusRunning {
		// Raced with SetResult/SetErr or another Cancel.
		cancelled := t.status == StatusCancelled
		t.mu.Unlock()
		return cancelled
	}
	cbs := t.terminateLocked(StatusCancelled)
	t.mu.Unlock()
	t.fire(cbs)
	return true
}

// SetResult stores the task's result and transitions it to Finished. On an
// already-cancelled task the outcome is logged and discarded, absorbing the
// race between a task finishing naturally and a concurrent cancellation.
func (t *Task[T]) SetResult(v T) {
	t.mu.Lock()
	if t.status.Terminal() {
		status := t.status
		t.mu.Unlock()
		t.logger.Debug("task result discarded", slog.String("status", status.String()))
		return
	}
	t.result = v
	cbs := t.terminateLocked(StatusFinished)
	t.mu.Unlock()
	t.fire(cbs)
}

// SetErr stores the task's error and transitions it to Finished. Like
// SetResult, it is logged and discarded on an already-cancelled task.
func (t *Task[T]) SetErr(err error) {
	t.mu.Lock()
	if t.status.Terminal() {
		status := t.status
		t.mu.Unlock()
		t.logger.Debug("task error discarded",
			slog.String("status", status.String()), slog.Any("error", err))
		return
	}
	t.err = err
	cbs := t.terminateLocked(StatusFinished)
	t.mu.Unlock()
	t.fire(cbs)
}

// AddDoneCallback registers cb to run exactly once when the task reaches a
// terminal state. On an already-terminal task cb runs immediately.
func (t *Task[T]) AddDoneCallback(cb DoneCallback[T]) {
	if cb == nil {
		return
	}
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		t.fireOne(cb)
		return
	}
	t.doneCbs = append(t.doneCbs, cb)
	t.mu.Unlock()
}

// Result blocks until the task is terminal or ctx ends. It returns the
// stored result, the stored error, errors.ErrCancelled when the task was
// cancelled, or errors.ErrTimeout when ctx expired first. A timeout only
// stops the caller from waiting; the task itself keeps running.
func (t *Task[T]) Result(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-t.done:
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return zero, errors.WrapTransient(errors.ErrTimeout, "Task", "Result", "wait")
		}
		return zero, errors.WrapTransient(errors.ErrCancelled, "Task", "Result", "wait")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusCancelled {
		return zero, errors.WrapTransient(errors.ErrCancelled, "Task", "Result", "task cancelled")
	}
	return t.result, t.err
}

// Wait blocks until the task is terminal or ctx ends, without touching the
// result slot. Like Result, it reports errors.ErrTimeout when ctx's
// deadline expired and errors.ErrCancelled when ctx was cancelled.
func (t *Task[T]) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return errors.WrapTransient(errors.ErrTimeout, "Task", "Wait", "wait")
		}
		return errors.WrapTransient(errors.ErrCancelled, "Task", "Wait", "wait")
	}
}

// lifetime returns the reference points used for progress reporting: when
// the work effectively began (start time, or creation for a task that never
// ran) and when it ended.
func (t *Task[T]) lifetime() (begin, end time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	begin = t.started
	if begin.IsZero() {
		begin = t.created
	}
	return begin, t.ended
}
