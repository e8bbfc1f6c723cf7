package attribute

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/delmic/odemis-sub003/errors"
	"github.com/delmic/odemis-sub003/metric"
	"github.com/delmic/odemis-sub003/pkg/listener"
	"github.com/delmic/odemis-sub003/remote"
)

// Setter transforms a requested value into the value actually stored, e.g.
// clamping a requested stage position to the hardware's reachable range.
// A setter owned by a released component reports errors.ErrListenerDead.
type Setter[T any] func(requested T) (T, error)

// Encoder serializes a value for remote subscribers.
type Encoder[T any] func(T) ([]byte, error)

// Cell is a validated, observable value holder. The zero value is not
// usable; construct cells with NewCell, NewContinuous or NewEnumerated.
type Cell[T comparable] struct {
	name     string
	unit     string
	readOnly bool
	setter   Setter[T]
	encode   Encoder[T]
	logger   *slog.Logger
	metrics  *metric.Metrics

	mu       sync.Mutex
	value    T
	validate func(T) error // nil means any value is accepted

	local     *listener.Registry[T]
	remoteMu  sync.Mutex
	remotes   map[remote.ChannelID]struct{}
	transport remote.Transport
}

// Option configures a cell at construction time.
type Option[T comparable] func(*Cell[T])

// WithUnit attaches a physical unit label (e.g. "m", "s", "px") to the cell.
func WithUnit[T comparable](unit string) Option[T] {
	return func(c *Cell[T]) {
		c.unit = unit
	}
}

// WithReadOnly makes every Set fail with errors.ErrNotSettable. Used for
// state the hardware reports but the user cannot change.
func WithReadOnly[T comparable]() Option[T] {
	return func(c *Cell[T]) {
		c.readOnly = true
	}
}

// WithSetter installs the value transform applied on every Set.
func WithSetter[T comparable](setter Setter[T]) Option[T] {
	return func(c *Cell[T]) {
		c.setter = setter
	}
}

// WithCellLogger sets the logger for listener and transport failures.
// Defaults to slog.Default().
func WithCellLogger[T comparable](logger *slog.Logger) Option[T] {
	return func(c *Cell[T]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTransport enables remote subscriptions through the given transport.
func WithTransport[T comparable](transport remote.Transport) Option[T] {
	return func(c *Cell[T]) {
		c.transport = transport
	}
}

// WithEncoder overrides the serialization used for remote subscribers.
// Defaults to encoding/json.
func WithEncoder[T comparable](encode Encoder[T]) Option[T] {
	return func(c *Cell[T]) {
		if encode != nil {
			c.encode = encode
		}
	}
}

// WithCellMetrics wires notification and rejection counters into the
// registry's core metrics. A nil registry is ignored.
func WithCellMetrics[T comparable](registry *metric.MetricsRegistry) Option[T] {
	return func(c *Cell[T]) {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
	}
}

// NewCell creates a cell that accepts any value of its type.
func NewCell[T comparable](name string, initial T, opts ...Option[T]) *Cell[T] {
	c := &Cell[T]{
		name:    name,
		value:   initial,
		logger:  slog.Default(),
		remotes: make(map[remote.ChannelID]struct{}),
		encode:  func(v T) ([]byte, error) { return json.Marshal(v) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.local = listener.NewRegistry[T](listener.WithLogger[T](c.logger))
	return c
}

// Name returns the cell's name, used for logging and metric labels.
func (c *Cell[T]) Name() string {
	return c.name
}

// Unit returns the cell's physical unit label, if any.
func (c *Cell[T]) Unit() string {
	return c.unit
}

// ReadOnly reports whether Set is rejected.
func (c *Cell[T]) ReadOnly() bool {
	return c.readOnly
}

// Get returns the current value. No side effects.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set validates requested, transforms it through the setter, stores the
// result and notifies subscribers.
//
// It fails with errors.ErrNotSettable on a read-only cell, with the
// validator's error (errors.ErrOutOfBound, errors.ErrInvalidType) on
// rejection, and with the setter's error when the setter fails; in all
// three cases the stored value is untouched and nothing is notified. The
// one exception is a setter whose owner is gone: it is skipped and
// requested is stored verbatim.
//
// Subscribers are notified when the previous value differs from the stored
// value, or when the requested value differs from the stored value. The
// second clause intentionally signals "your request was adjusted" even when
// the stored value did not change.
func (c *Cell[T]) Set(requested T) error {
	if c.readOnly {
		c.rejected("read_only")
		return errors.WrapInvalid(errors.ErrNotSettable, "Cell", "Set", c.name)
	}

	c.mu.Lock()
	if c.validate != nil {
		if err := c.validate(requested); err != nil {
			c.mu.Unlock()
			c.rejected("validation")
			return err
		}
	}

	stored := requested
	if c.setter != nil {
		v, err := c.setter(requested)
		switch {
		case err == nil:
			stored = v
		case stderrors.Is(err, errors.ErrListenerDead):
			// Setter owner is gone: keep the requested value as-is.
			c.logger.Debug("cell setter owner gone, storing requested value",
				slog.String("cell", c.name))
		default:
			c.mu.Unlock()
			c.rejected("setter")
			return errors.Wrap(err, "Cell", "Set", c.name)
		}
	}

	previous := c.value
	c.value = stored
	mustNotify := previous != stored || requested != stored
	c.mu.Unlock()

	if mustNotify {
		c.notify(stored)
	}
	return nil
}

// Subscribe adds a listener. With init true, the listener is invoked
// synchronously, immediately, with the current value, independent of any
// future change.
func (c *Cell[T]) Subscribe(l listener.Listener[T], init bool) {
	c.local.Add(l)
	if init {
		if err := l.Invoke(c.Get()); err != nil {
			c.local.Remove(l)
		}
	}
}

// SubscribeFunc wraps fn as an owning listener, subscribes it and returns
// the handle needed for Unsubscribe.
func (c *Cell[T]) SubscribeFunc(fn func(T), init bool) listener.Listener[T] {
	l := listener.NewStrong(fn)
	c.Subscribe(l, init)
	return l
}

// Unsubscribe removes a listener. Idempotent.
func (c *Cell[T]) Unsubscribe(l listener.Listener[T]) {
	c.local.Remove(l)
}

// SubscribeRemote registers a remote channel identifier; every notification
// is serialized and broadcast to it. Requires a transport.
func (c *Cell[T]) SubscribeRemote(channelID remote.ChannelID) error {
	if c.transport == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Cell", "SubscribeRemote", "no transport configured")
	}
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	c.remotes[channelID] = struct{}{}
	return nil
}

// UnsubscribeRemote removes a remote channel identifier. Idempotent.
func (c *Cell[T]) UnsubscribeRemote(channelID remote.ChannelID) {
	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	delete(c.remotes, channelID)
}

// SubscriberCount returns the number of local plus remote subscribers.
func (c *Cell[T]) SubscriberCount() int {
	c.remoteMu.Lock()
	nRemote := len(c.remotes)
	c.remoteMu.Unlock()
	return c.local.Len() + nRemote
}

// notify delivers v to a snapshot of the subscriber set. Local listeners
// are invoked synchronously and in isolation; remote subscribers receive a
// serialized copy through the transport.
func (c *Cell[T]) notify(v T) {
	if c.metrics != nil {
		c.metrics.CellNotifications.WithLabelValues(c.name).Inc()
	}

	c.local.Dispatch(v)

	c.remoteMu.Lock()
	remotes := make([]remote.ChannelID, 0, len(c.remotes))
	for id := range c.remotes {
		remotes = append(remotes, id)
	}
	c.remoteMu.Unlock()

	if len(remotes) == 0 || c.transport == nil {
		return
	}

	payload, err := c.encode(v)
	if err != nil {
		c.logger.Error("cell value not serializable for remote subscribers",
			slog.String("cell", c.name), slog.Any("error", err))
		return
	}
	for _, id := range remotes {
		if err := c.transport.Broadcast(context.Background(), id, payload); err != nil {
			c.logger.Warn("cell broadcast failed",
				slog.String("cell", c.name),
				slog.String("channel", id.String()),
				slog.Any("error", err))
		}
	}
}

func (c *Cell[T]) rejected(reason string) {
	if c.metrics != nil {
		c.metrics.CellSetRejected.WithLabelValues(c.name, reason).Inc()
	}
}
