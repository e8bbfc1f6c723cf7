package task

import (
	"context"
)

// InstantFuture represents "nothing to wait for": a degenerate task
// pre-populated with a result or an error. It always reports Finished and
// can never be cancelled.
type InstantFuture[T any] struct {
	result T
	err    error
}

// NewInstantResult creates a future already holding a result.
func NewInstantResult[T any](v T) *InstantFuture[T] {
	return &InstantFuture[T]{result: v}
}

// NewInstantError creates a future already holding an error.
func NewInstantError[T any](err error) *InstantFuture[T] {
	return &InstantFuture[T]{err: err}
}

// Status always returns StatusFinished.
func (f *InstantFuture[T]) Status() Status {
	return StatusFinished
}

// Cancel always returns false: a finished task cannot be cancelled.
func (f *InstantFuture[T]) Cancel() bool {
	return false
}

// Result returns the stored outcome without blocking.
func (f *InstantFuture[T]) Result(_ context.Context) (T, error) {
	return f.result, f.err
}

// Wait returns immediately.
func (f *InstantFuture[T]) Wait(_ context.Context) error {
	return nil
}

// AddDoneCallback invokes cb immediately: the future is already terminal.
func (f *InstantFuture[T]) AddDoneCallback(cb func(*InstantFuture[T])) {
	if cb != nil {
		cb(f)
	}
}
