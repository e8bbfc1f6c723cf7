package datastream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/delmic/odemis-sub003/config"
	"github.com/delmic/odemis-sub003/errors"
	"github.com/delmic/odemis-sub003/metric"
	"github.com/delmic/odemis-sub003/pkg/buffer"
	"github.com/delmic/odemis-sub003/pkg/listener"
	"github.com/delmic/odemis-sub003/remote"
)

// Encoder serializes a payload for remote subscribers.
type Encoder[T any] func(T) ([]byte, error)

// Channel is a publish/subscribe channel for continuous payloads. Create
// one per producer; subscribers come and go independently of the channel's
// own lifetime.
type Channel[T any] struct {
	name          string
	discardBound  int
	startGenerate func()
	stopGenerate  func()
	encode        Encoder[T]
	logger        *slog.Logger
	metrics       *metric.Metrics
	transport     remote.Transport

	// mu serializes subscriber-count transitions so the producer hooks fire
	// exactly once per 0 to non-zero and non-zero to 0 edge.
	mu    sync.Mutex
	local *listener.Registry[T]

	remoteMu sync.Mutex
	remotes  map[remote.ChannelID]*remoteSub
	closed   bool
}

// remoteSub is the delivery state for one remote subscriber: a bounded
// backlog flushed to the transport by a dedicated pump goroutine.
type remoteSub struct {
	backlog *buffer.Backlog[[]byte]
	cancel  context.CancelFunc
}

// Option configures a channel at construction time.
type Option[T any] func(*Channel[T])

// WithStartGenerate sets the producer hook invoked when the subscriber
// count leaves zero.
func WithStartGenerate[T any](hook func()) Option[T] {
	return func(c *Channel[T]) {
		c.startGenerate = hook
	}
}

// WithStopGenerate sets the producer hook invoked when the subscriber count
// returns to zero.
func WithStopGenerate[T any](hook func()) Option[T] {
	return func(c *Channel[T]) {
		c.stopGenerate = hook
	}
}

// WithTransport enables remote subscriptions through the given transport.
func WithTransport[T any](transport remote.Transport) Option[T] {
	return func(c *Channel[T]) {
		c.transport = transport
	}
}

// WithEncoder overrides the serialization used for remote subscribers.
// Defaults to encoding/json.
func WithEncoder[T any](encode Encoder[T]) Option[T] {
	return func(c *Channel[T]) {
		if encode != nil {
			c.encode = encode
		}
	}
}

// WithChannelLogger sets the logger for delivery failures.
// Defaults to slog.Default().
func WithChannelLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *Channel[T]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithChannelMetrics wires publish, drop and subscriber-count metrics into
// the registry's core metrics. A nil registry is ignored.
func WithChannelMetrics[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(c *Channel[T]) {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
	}
}

// NewChannel creates a channel. cfg carries the discard bound applied to
// each remote subscriber's backlog; a bound of zero keeps every payload.
func NewChannel[T any](name string, cfg config.StreamConfig, opts ...Option[T]) *Channel[T] {
	c := &Channel[T]{
		name:         name,
		discardBound: cfg.DiscardBound,
		logger:       slog.Default(),
		remotes:      make(map[remote.ChannelID]*remoteSub),
		encode:       func(v T) ([]byte, error) { return json.Marshal(v) },
	}
	if c.discardBound < 0 {
		c.discardBound = 0
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.local = listener.NewRegistry[T](
		listener.WithLogger[T](c.logger),
		listener.WithPurgeCallback[T](c.purged),
	)
	return c
}

// purged re-evaluates the producer edge after Dispatch drops a dead
// listener. The registry has already removed it, so the count before the
// purge was one higher than the current total.
func (c *Channel[T]) purged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transition(c.total() + 1)
}

// Name returns the channel's name, used for logging and metric labels.
func (c *Channel[T]) Name() string {
	return c.name
}

// Generating reports whether the producer hooks currently hold the channel
// in the generating state, i.e. the subscriber count is non-zero.
func (c *Channel[T]) Generating() bool {
	return c.total() > 0
}

// SubscriberCount returns the number of local plus remote subscribers.
func (c *Channel[T]) SubscriberCount() int {
	return c.total()
}

func (c *Channel[T]) total() int {
	c.remoteMu.Lock()
	nRemote := len(c.remotes)
	c.remoteMu.Unlock()
	return c.local.Len() + nRemote
}

// Subscribe adds a listener. The first subscriber (local or remote) starts
// the producer. A listener whose owner is already gone is ignored; it could
// never receive a payload.
func (c *Channel[T]) Subscribe(l listener.Listener[T]) {
	if l == nil || !l.Alive() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.total()
	c.local.Add(l)
	c.transition(before)
}

// SubscribeFunc wraps fn as an owning listener, subscribes it and returns
// the handle needed for Unsubscribe.
func (c *Channel[T]) SubscribeFunc(fn func(T)) listener.Listener[T] {
	l := listener.NewStrong(fn)
	c.Subscribe(l)
	return l
}

// Unsubscribe removes a listener; the last unsubscribe stops the producer.
// Idempotent.
func (c *Channel[T]) Unsubscribe(l listener.Listener[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.total()
	c.local.Remove(l)
	c.transition(before)
}

// SubscribeRemote registers a remote channel identifier. Payloads are
// serialized and broadcast to it through a backlog with the channel's
// discard bound. Requires a transport.
func (c *Channel[T]) SubscribeRemote(channelID remote.ChannelID) error {
	if c.transport == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Channel", "SubscribeRemote", "no transport configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.total()

	c.remoteMu.Lock()
	if c.closed {
		c.remoteMu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped,
			"Channel", "SubscribeRemote", "channel closed")
	}
	if _, exists := c.remotes[channelID]; !exists {
		ctx, cancel := context.WithCancel(context.Background())
		var dropCb buffer.DropCallback[[]byte]
		if c.metrics != nil {
			drops := c.metrics.StreamDropped.WithLabelValues(c.name)
			dropCb = func([]byte) { drops.Inc() }
		}
		rs := &remoteSub{
			backlog: buffer.NewBacklog[[]byte](c.discardBound, buffer.WithDropCallback[[]byte](dropCb)),
			cancel:  cancel,
		}
		c.remotes[channelID] = rs
		go c.pump(ctx, channelID, rs)
	}
	c.remoteMu.Unlock()

	c.transition(before)
	return nil
}

// UnsubscribeRemote removes a remote channel identifier. Payloads already
// in its backlog are still flushed. Idempotent.
func (c *Channel[T]) UnsubscribeRemote(channelID remote.ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.total()

	c.remoteMu.Lock()
	if rs, exists := c.remotes[channelID]; exists {
		delete(c.remotes, channelID)
		_ = rs.backlog.Close()
	}
	c.remoteMu.Unlock()

	c.transition(before)
}

// transition fires the producer hooks on subscriber-count edges. Called
// with c.mu held.
func (c *Channel[T]) transition(before int) {
	after := c.total()
	if c.metrics != nil {
		c.metrics.StreamSubscribers.WithLabelValues(c.name).Set(float64(after))
	}

	switch {
	case before == 0 && after > 0:
		if c.startGenerate != nil {
			c.startGenerate()
		}
	case before > 0 && after == 0:
		if c.stopGenerate != nil {
			c.stopGenerate()
		}
	}
}

// Publish delivers payload synchronously to every local subscriber, each in
// isolation, then enqueues it for every remote subscriber under the discard
// policy.
func (c *Channel[T]) Publish(payload T) {
	if c.metrics != nil {
		c.metrics.StreamPublished.WithLabelValues(c.name).Inc()
	}

	c.local.Dispatch(payload)

	c.remoteMu.Lock()
	if len(c.remotes) == 0 {
		c.remoteMu.Unlock()
		return
	}
	backlogs := make([]*buffer.Backlog[[]byte], 0, len(c.remotes))
	for _, rs := range c.remotes {
		backlogs = append(backlogs, rs.backlog)
	}
	c.remoteMu.Unlock()

	encoded, err := c.encode(payload)
	if err != nil {
		c.logger.Error("stream payload not serializable for remote subscribers",
			slog.String("stream", c.name), slog.Any("error", err))
		return
	}
	for _, bl := range backlogs {
		_ = bl.Put(encoded)
	}
}

// pump flushes one remote subscriber's backlog to the transport until the
// backlog is closed and drained.
func (c *Channel[T]) pump(ctx context.Context, channelID remote.ChannelID, rs *remoteSub) {
	defer rs.cancel()
	for {
		encoded, err := rs.backlog.Next(ctx)
		if err != nil {
			return
		}
		if err := c.transport.Broadcast(ctx, channelID, encoded); err != nil {
			c.logger.Warn("stream broadcast failed",
				slog.String("stream", c.name),
				slog.String("channel", channelID.String()),
				slog.Any("error", err))
		}
	}
}

// Get subscribes a transient listener, blocks until the first payload
// published after the call began, unsubscribes and returns the payload. As
// the only subscriber it triggers a normal start/stop producer cycle. The
// context bounds the wait; an elapsed deadline reports errors.ErrTimeout.
func (c *Channel[T]) Get(ctx context.Context) (T, error) {
	first := make(chan T, 1)
	var once sync.Once
	l := listener.NewStrong(func(v T) {
		once.Do(func() { first <- v })
	})

	c.Subscribe(l)
	defer c.Unsubscribe(l)

	var zero T
	select {
	case v := <-first:
		return v, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return zero, errors.WrapTransient(errors.ErrTimeout, "Channel", "Get", c.name)
		}
		return zero, errors.WrapTransient(errors.ErrCancelled, "Channel", "Get", c.name)
	}
}

// Close tears down every remote subscription. Local listeners simply stop
// receiving once the producer stops publishing.
func (c *Channel[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.total()

	c.remoteMu.Lock()
	if c.closed {
		c.remoteMu.Unlock()
		return nil
	}
	c.closed = true
	for id, rs := range c.remotes {
		delete(c.remotes, id)
		_ = rs.backlog.Close()
	}
	c.remoteMu.Unlock()

	c.transition(before)
	return nil
}
