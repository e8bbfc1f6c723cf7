package listener

import (
	"sync"

	"github.com/delmic/odemis-sub003/errors"
)

// Listener represents a subscription callback as a capability: the holder
// can check whether the owner is still alive and invoke the callback with a
// value. Invoke reports errors.ErrListenerDead once the owner is gone, so
// the holder can react by unsubscribing instead of silently no-op'ing.
type Listener[T any] interface {
	// Alive reports whether the underlying callback's owner is still alive.
	Alive() bool

	// Invoke calls the underlying callback with v.
	// Returns errors.ErrListenerDead if the owner has been released.
	Invoke(v T) error
}

// Strong is an owning listener: it keeps the wrapped callback alive for as
// long as the subscription itself exists. Use it when the subscriber wants
// the subscription to pin the callback.
type Strong[T any] struct {
	fn func(T)
}

// NewStrong wraps fn as an owning listener.
func NewStrong[T any](fn func(T)) *Strong[T] {
	return &Strong[T]{fn: fn}
}

// Alive always returns true for a strong listener.
func (s *Strong[T]) Alive() bool {
	return true
}

// Invoke calls the wrapped callback.
func (s *Strong[T]) Invoke(v T) error {
	s.fn(v)
	return nil
}

// Weak is a non-owning listener: the owner must call Release on teardown,
// after which the handle is dead and the wrapped callback (and anything it
// captured) is no longer reachable through the handle.
type Weak[T any] struct {
	mu       sync.RWMutex
	fn       func(T)
	released bool
}

// NewWeak wraps fn as a non-owning listener with an explicit Release contract.
func NewWeak[T any](fn func(T)) *Weak[T] {
	return &Weak[T]{fn: fn}
}

// Alive reports whether Release has not yet been called.
func (w *Weak[T]) Alive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.released
}

// Invoke calls the wrapped callback, or returns errors.ErrListenerDead if
// the handle has been released.
func (w *Weak[T]) Invoke(v T) error {
	w.mu.RLock()
	fn := w.fn
	released := w.released
	w.mu.RUnlock()

	if released {
		return errors.ErrListenerDead
	}
	fn(v)
	return nil
}

// Release marks the handle dead and drops the wrapped callback. Idempotent.
func (w *Weak[T]) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released = true
	w.fn = nil
}
