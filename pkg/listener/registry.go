package listener

import (
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/delmic/odemis-sub003/errors"
)

// Registry is a thread-safe subscriber set. Add and Remove mutate the set
// under an internal lock; Dispatch iterates over a snapshot so listeners may
// subscribe or unsubscribe during their own invocation.
type Registry[T any] struct {
	mu        sync.Mutex
	listeners map[Listener[T]]struct{}
	logger    *slog.Logger
	onPurge   func()
}

// Option configures a Registry.
type Option[T any] func(*Registry[T])

// WithLogger sets the logger used to report listener failures.
// Defaults to slog.Default().
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(r *Registry[T]) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPurgeCallback registers fn to run each time Dispatch removes a dead
// listener. Owners that track the subscriber count observe removals that
// never went through their own unsubscribe path. fn runs outside the
// registry lock, after the listener is gone from the set.
func WithPurgeCallback[T any](fn func()) Option[T] {
	return func(r *Registry[T]) {
		r.onPurge = fn
	}
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry[T any](opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{
		listeners: make(map[Listener[T]]struct{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Add registers l. Adding the same handle twice is a no-op.
func (r *Registry[T]) Add(l Listener[T]) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[l] = struct{}{}
}

// Remove unregisters l. Idempotent: removing an unknown handle is a no-op.
func (r *Registry[T]) Remove(l Listener[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, l)
}

// Len returns the current number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Snapshot returns a copy of the current subscriber set.
func (r *Registry[T]) Snapshot() []Listener[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]Listener[T], 0, len(r.listeners))
	for l := range r.listeners {
		snapshot = append(snapshot, l)
	}
	return snapshot
}

// Dispatch delivers v to a snapshot of the current subscriber set. Each
// listener is invoked synchronously and in isolation: a panic or error in
// one listener is logged and does not stop delivery to the others. A
// listener whose owner is gone is removed from the set instead of raising
// to the caller.
func (r *Registry[T]) Dispatch(v T) {
	for _, l := range r.Snapshot() {
		r.invoke(l, v)
	}
}

func (r *Registry[T]) invoke(l Listener[T], v T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("listener panicked during dispatch",
				slog.Any("panic", rec))
		}
	}()

	if err := l.Invoke(v); err != nil {
		if stderrors.Is(err, errors.ErrListenerDead) {
			r.Remove(l)
			r.logger.Debug("removed dead listener")
			if r.onPurge != nil {
				r.onPurge()
			}
			return
		}
		r.logger.Warn("listener returned error during dispatch",
			slog.Any("error", err))
	}
}
