package buffer

import (
	"context"
	"sync"

	"github.com/delmic/odemis-sub003/errors"
)

// Policy defines what happens when a bounded backlog is full.
type Policy int

const (
	// DropOldest discards the oldest payload to make room for the newest
	DropOldest Policy = iota
	// Unbounded keeps every payload until consumed, growing without limit
	Unbounded
)

// String returns the string representation of Policy
func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case Unbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

// DropCallback is invoked with each payload discarded by the DropOldest policy.
type DropCallback[T any] func(T)

// Stats holds backlog counters, always collected.
type Stats struct {
	Put       int64 `json:"put"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// Backlog is a FIFO payload queue between one producer and one consumer.
// Put never blocks; Next blocks the single consumer until a payload is
// available, the backlog is closed, or the context ends.
type Backlog[T any] struct {
	mu     sync.Mutex
	items  []T
	bound  int // 0 means Unbounded
	closed bool

	stats        Stats
	dropCallback DropCallback[T]

	signal   chan struct{} // capacity 1, poked on every Put
	closedCh chan struct{}
}

// Option configures a Backlog.
type Option[T any] func(*Backlog[T])

// WithDropCallback sets a callback invoked with each discarded payload.
// The callback runs outside the backlog lock.
func WithDropCallback[T any](cb DropCallback[T]) Option[T] {
	return func(b *Backlog[T]) {
		b.dropCallback = cb
	}
}

// NewBacklog creates a backlog with the given bound. A bound of zero selects
// the Unbounded policy; a bound of one or more selects DropOldest with that
// capacity.
func NewBacklog[T any](bound int, opts ...Option[T]) *Backlog[T] {
	if bound < 0 {
		bound = 0
	}

	b := &Backlog[T]{
		bound:    bound,
		signal:   make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Policy returns the discard policy implied by the backlog's bound.
func (b *Backlog[T]) Policy() Policy {
	if b.bound == 0 {
		return Unbounded
	}
	return DropOldest
}

// Bound returns the configured bound (0 for Unbounded).
func (b *Backlog[T]) Bound() int {
	return b.bound
}

// Len returns the number of payloads currently queued.
func (b *Backlog[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Statistics returns a copy of the backlog counters.
func (b *Backlog[T]) Statistics() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Put enqueues v. With the DropOldest policy and a full backlog, the oldest
// payload is discarded and the drop callback (if any) is invoked with it.
// Returns errors.ErrAlreadyStopped after Close.
func (b *Backlog[T]) Put(v T) error {
	var dropped T
	var didDrop bool

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.ErrAlreadyStopped
	}

	if b.bound > 0 && len(b.items) >= b.bound {
		dropped = b.items[0]
		b.items = b.items[1:]
		b.stats.Dropped++
		didDrop = true
	}
	b.items = append(b.items, v)
	b.stats.Put++
	cb := b.dropCallback
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}

	if didDrop && cb != nil {
		cb(dropped)
	}
	return nil
}

// TryNext dequeues the oldest payload without blocking.
// Returns the zero value and false if the backlog is empty.
func (b *Backlog[T]) TryNext() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pop()
}

// Next dequeues the oldest payload, blocking until one is available. It
// returns errors.ErrAlreadyStopped once the backlog is closed and drained,
// or the context error if ctx ends first. Next is single-consumer: the
// backlog pairs one producer with one pump goroutine.
func (b *Backlog[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		b.mu.Lock()
		if v, ok := b.pop(); ok {
			b.mu.Unlock()
			return v, nil
		}
		if b.closed {
			b.mu.Unlock()
			return zero, errors.ErrAlreadyStopped
		}
		b.mu.Unlock()

		select {
		case <-b.signal:
		case <-b.closedCh:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// pop removes and returns the oldest payload. Caller holds b.mu.
func (b *Backlog[T]) pop() (T, bool) {
	var zero T
	if len(b.items) == 0 {
		return zero, false
	}
	v := b.items[0]
	b.items[0] = zero // release the payload reference
	b.items = b.items[1:]
	if len(b.items) == 0 {
		b.items = nil
	}
	b.stats.Delivered++
	return v, true
}

// Close stops the backlog and wakes a blocked consumer. Payloads already
// queued remain readable until drained. Idempotent.
func (b *Backlog[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.closedCh)
	return nil
}
