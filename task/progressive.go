package task

import (
	"log/slog"
	"sync"
	"time"
)

// UpdateCallback receives a progress estimate: how long the task has been
// going (negative while pending means "starts in that long") and how long it
// is expected to still take.
type UpdateCallback func(elapsed, remaining time.Duration)

// Progressive is a task that additionally carries an estimated (start, end)
// time pair and update callbacks, used to drive progress reporting for long
// operations.
type Progressive[T any] struct {
	*Task[T]

	pmu       sync.Mutex
	estStart  time.Time
	estEnd    time.Time
	updateCbs []UpdateCallback
}

// NewProgressive creates a pending progressive task with an initial
// (start, end) estimate.
func NewProgressive[T any](start, end time.Time, opts ...TaskOption[T]) *Progressive[T] {
	p := &Progressive[T]{
		Task:     NewTask(opts...),
		estStart: start,
		estEnd:   end,
	}
	// Terminal transition fires the update callbacks one final time, with
	// elapsed equal to the actual duration and zero remaining.
	p.Task.AddDoneCallback(func(*Task[T]) {
		p.finalUpdate()
	})
	return p
}

// SetProgress updates the estimate and immediately fires all update
// callbacks with the new figures.
func (p *Progressive[T]) SetProgress(start, end time.Time) {
	p.pmu.Lock()
	p.estStart, p.estEnd = start, end
	cbs := make([]UpdateCallback, len(p.updateCbs))
	copy(cbs, p.updateCbs)
	p.pmu.Unlock()

	elapsed, remaining := p.Estimate()
	for _, cb := range cbs {
		p.fireUpdate(cb, elapsed, remaining)
	}
}

// Progress returns the current (start, end) estimate, clamped so that a
// pending task never reports a start time in the past and a running task
// never reports an end time in the past. Once terminal, it reports the
// task's actual lifetime.
func (p *Progressive[T]) Progress() (time.Time, time.Time) {
	status := p.Status()
	if status.Terminal() {
		return p.lifetime()
	}

	now := time.Now()
	p.pmu.Lock()
	start, end := p.estStart, p.estEnd
	p.pmu.Unlock()

	if status == StatusRunning {
		if end.Before(now) {
			end = now
		}
		return start, end
	}

	// Pending: the task cannot have started yet.
	if start.Before(now) {
		start = now
	}
	if end.Before(start) {
		end = start
	}
	return start, end
}

// Estimate converts the current Progress into (elapsed, remaining)
// durations. While pending, elapsed may be negative, meaning the task is
// expected to start in that long. Once terminal, elapsed is the actual
// duration and remaining is zero.
func (p *Progressive[T]) Estimate() (elapsed, remaining time.Duration) {
	start, end := p.Progress()
	if p.Status().Terminal() {
		return end.Sub(start), 0
	}

	now := time.Now()
	elapsed = now.Sub(start)
	remaining = end.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return elapsed, remaining
}

// AddUpdateCallback registers cb and immediately invokes it once with the
// current estimate. It is then invoked again on every SetProgress, and
// exactly once more when the task reaches a terminal state.
func (p *Progressive[T]) AddUpdateCallback(cb UpdateCallback) {
	if cb == nil {
		return
	}

	p.pmu.Lock()
	terminal := p.Status().Terminal()
	if !terminal {
		p.updateCbs = append(p.updateCbs, cb)
	}
	p.pmu.Unlock()

	elapsed, remaining := p.Estimate()
	p.fireUpdate(cb, elapsed, remaining)
}

// finalUpdate fires every update callback one last time and drops them.
func (p *Progressive[T]) finalUpdate() {
	p.pmu.Lock()
	cbs := p.updateCbs
	p.updateCbs = nil
	p.pmu.Unlock()

	elapsed, remaining := p.Estimate()
	for _, cb := range cbs {
		p.fireUpdate(cb, elapsed, remaining)
	}
}

func (p *Progressive[T]) fireUpdate(cb UpdateCallback, elapsed, remaining time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("task update-callback panicked", slog.Any("panic", rec))
		}
	}()
	cb(elapsed, remaining)
}
