package task

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/delmic/odemis-sub003/config"
	"github.com/delmic/odemis-sub003/errors"
	"github.com/delmic/odemis-sub003/metric"
)

// Cancellable is the executor's view of a submitted task, independent of
// its result type.
type Cancellable interface {
	Cancel() bool
	Wait(ctx context.Context) error
	Status() Status
}

// Executor runs tasks on a fixed-size worker pool. Besides the pool's own
// queue it keeps an explicit FIFO record of live submissions, because the
// queue alone cannot identify queued-but-not-started work for bulk
// cancellation.
type Executor struct {
	workers   int
	queueSize int
	workChan  chan func()
	logger    *slog.Logger
	metrics   *metric.Metrics

	// Lifecycle management
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	wg          *sync.WaitGroup

	// Submission tracking for CancelAll
	trackMu sync.Mutex
	tracked []Cancellable

	// Statistics (atomic)
	submitted int64
	finished  int64
	cancelled int64
}

// ExecutorOption configures an executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor logger. Defaults to slog.Default().
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetricsRegistry wires task counters and durations into the registry's
// core metrics. A nil registry is ignored.
func WithMetricsRegistry(registry *metric.MetricsRegistry) ExecutorOption {
	return func(e *Executor) {
		if registry != nil {
			e.metrics = registry.CoreMetrics()
		}
	}
}

// NewExecutor creates an executor sized by cfg. Zero values fall back to
// the defaults from config.Default.
func NewExecutor(cfg config.ExecutorConfig, opts ...ExecutorOption) *Executor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.Default().Executor.Workers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = config.Default().Executor.QueueSize
	}

	e := &Executor{
		workers:   workers,
		queueSize: queueSize,
		workChan:  make(chan func(), queueSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Start starts the worker pool
func (e *Executor) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Executor", "Start", "lifecycle check")
	}

	e.wg = &sync.WaitGroup{}
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	e.started = true
	return nil
}

// Stop stops accepting work and waits for the workers to drain, up to
// timeout. Running tasks are not interrupted; use CancelAll first for a
// hard shutdown.
func (e *Executor) Stop(timeout time.Duration) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.started || e.stopped {
		return nil
	}
	e.stopped = true
	close(e.workChan)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapFatal(errors.ErrStopTimeout, "Executor", "Stop", "drain")
	}
}

// worker runs queued work items until the queue closes or ctx ends.
func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-e.workChan:
			if !ok {
				return
			}
			work()
		}
	}
}

// enqueue registers c in the tracking structure and queues its work item.
// The send stays under lifecycleMu: Stop closes workChan under the same
// lock, so the stopped check and the send are atomic with respect to it.
func (e *Executor) enqueue(c Cancellable, work func()) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Executor", "Submit", "lifecycle check")
	}
	if e.stopped {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Executor", "Submit", "lifecycle check")
	}

	e.track(c)

	select {
	case e.workChan <- work:
		atomic.AddInt64(&e.submitted, 1)
		if e.metrics != nil {
			e.metrics.TasksSubmitted.Inc()
		}
		return nil
	default:
		e.untrack(c)
		return errors.WrapTransient(errors.ErrQueueFull, "Executor", "Submit", "enqueue")
	}
}

func (e *Executor) track(c Cancellable) {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	e.tracked = append(e.tracked, c)
}

func (e *Executor) untrack(c Cancellable) {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	for i, tc := range e.tracked {
		if tc == c {
			e.tracked = append(e.tracked[:i], e.tracked[i+1:]...)
			return
		}
	}
}

// finishTask records a task's terminal state in stats and metrics.
func (e *Executor) finishTask(c Cancellable, began, ended time.Time) {
	e.untrack(c)

	status := c.Status()
	if status == StatusCancelled {
		atomic.AddInt64(&e.cancelled, 1)
	} else {
		atomic.AddInt64(&e.finished, 1)
	}

	if e.metrics != nil {
		e.metrics.TasksFinished.WithLabelValues(status.String()).Inc()
		if !began.IsZero() && !ended.IsZero() {
			e.metrics.TaskDuration.Observe(ended.Sub(began).Seconds())
		}
	}
}

// Submit wraps fn into a fresh task, queues it and returns it. The task's
// context is the cooperative cancellation token: the body must watch it if
// it wants queue-jumping cancellation to also stop in-flight work.
func Submit[T any](e *Executor, fn func(context.Context) (T, error), opts ...TaskOption[T]) (*Task[T], error) {
	t := NewTask[T](opts...)
	t.AddDoneCallback(func(tt *Task[T]) {
		began, ended := tt.lifetime()
		e.finishTask(tt, began, ended)
	})

	work := func() {
		if !t.markRunning() {
			// Cancelled while queued; never run.
			return
		}
		v, err := fn(t.Context())
		if err != nil {
			t.SetErr(err)
			return
		}
		t.SetResult(v)
	}

	if err := e.enqueue(t, work); err != nil {
		return nil, err
	}
	return t, nil
}

// SubmitProgressive is Submit for a progressive task: the body receives the
// task itself to report progress through SetProgress.
func SubmitProgressive[T any](e *Executor, start, end time.Time, fn func(context.Context, *Progressive[T]) (T, error), opts ...TaskOption[T]) (*Progressive[T], error) {
	p := NewProgressive[T](start, end, opts...)
	p.Task.AddDoneCallback(func(tt *Task[T]) {
		began, ended := tt.lifetime()
		e.finishTask(p, began, ended)
	})

	work := func() {
		if !p.markRunning() {
			return
		}
		v, err := fn(p.Context(), p)
		if err != nil {
			p.SetErr(err)
			return
		}
		p.SetResult(v)
	}

	if err := e.enqueue(p, work); err != nil {
		return nil, err
	}
	return p, nil
}

// CancelAll cancels every still-tracked task, newest first. Queued tasks
// are cancelled outright; running tasks are asked through their canceller.
// Tasks that refuse are collected, and CancelAll blocks until each of them
// reaches a terminal state on its own, so no task submitted through this
// executor can still be touching hardware when it returns. ctx bounds the
// wait.
func (e *Executor) CancelAll(ctx context.Context) error {
	var refused []Cancellable

	for {
		e.trackMu.Lock()
		if len(e.tracked) == 0 {
			e.trackMu.Unlock()
			break
		}
		c := e.tracked[len(e.tracked)-1]
		e.tracked = e.tracked[:len(e.tracked)-1]
		e.trackMu.Unlock()

		if !c.Cancel() && !c.Status().Terminal() {
			refused = append(refused, c)
		}
	}

	for _, c := range refused {
		if err := c.Wait(ctx); err != nil {
			return errors.Wrap(err, "Executor", "CancelAll", "wait for running tasks")
		}
	}
	return nil
}

// ExecutorStats represents executor statistics
type ExecutorStats struct {
	Workers   int   `json:"workers"`
	QueueSize int   `json:"queue_size"`
	Pending   int   `json:"pending"`
	Submitted int64 `json:"submitted"`
	Finished  int64 `json:"finished"`
	Cancelled int64 `json:"cancelled"`
}

// Stats returns current executor statistics
func (e *Executor) Stats() ExecutorStats {
	e.trackMu.Lock()
	pending := len(e.tracked)
	e.trackMu.Unlock()

	return ExecutorStats{
		Workers:   e.workers,
		QueueSize: e.queueSize,
		Pending:   pending,
		Submitted: atomic.LoadInt64(&e.submitted),
		Finished:  atomic.LoadInt64(&e.finished),
		Cancelled: atomic.LoadInt64(&e.cancelled),
	}
}
