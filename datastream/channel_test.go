package datastream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delmic/odemis-sub003/config"
	"github.com/delmic/odemis-sub003/errors"
	"github.com/delmic/odemis-sub003/pkg/listener"
	"github.com/delmic/odemis-sub003/remote"
)

func TestChannelSubscribePublish(t *testing.T) {
	ch := NewChannel[int]("test.frames", config.StreamConfig{})

	var mu sync.Mutex
	var got []int
	l := ch.SubscribeFunc(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	defer ch.Unsubscribe(l)

	ch.Publish(1)
	ch.Publish(2)
	ch.Publish(3)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, got)
	mu.Unlock()
}

func TestChannelProducerHooksFireOncePerEdge(t *testing.T) {
	var starts, stops atomic.Int32
	ch := NewChannel[int]("test.hooks", config.StreamConfig{},
		WithStartGenerate[int](func() { starts.Add(1) }),
		WithStopGenerate[int](func() { stops.Add(1) }),
	)

	assert.False(t, ch.Generating())

	// Three subscribers: the producer starts exactly once
	l1 := ch.SubscribeFunc(func(int) {})
	l2 := ch.SubscribeFunc(func(int) {})
	l3 := ch.SubscribeFunc(func(int) {})
	assert.Equal(t, int32(1), starts.Load())
	assert.True(t, ch.Generating())
	assert.Equal(t, 3, ch.SubscriberCount())

	// Removing all but one does not stop it
	ch.Unsubscribe(l1)
	ch.Unsubscribe(l2)
	assert.Equal(t, int32(0), stops.Load())

	// The last unsubscribe stops it exactly once
	ch.Unsubscribe(l3)
	assert.Equal(t, int32(1), stops.Load())
	assert.False(t, ch.Generating())

	// Repeated unsubscribe is a no-op
	ch.Unsubscribe(l3)
	assert.Equal(t, int32(1), stops.Load())

	// A fresh subscriber restarts the cycle
	l4 := ch.SubscribeFunc(func(int) {})
	assert.Equal(t, int32(2), starts.Load())
	ch.Unsubscribe(l4)
	assert.Equal(t, int32(2), stops.Load())
}

func TestChannelPublishCanRunInsideStartHook(t *testing.T) {
	// A producer that publishes synchronously from its start hook must not
	// deadlock against the subscription that triggered it
	var ch *Channel[int]
	ch = NewChannel[int]("test.sync", config.StreamConfig{},
		WithStartGenerate[int](func() { ch.Publish(123) }),
	)

	got := make(chan int, 1)
	l := ch.SubscribeFunc(func(v int) { got <- v })
	defer ch.Unsubscribe(l)

	select {
	case v := <-got:
		assert.Equal(t, 123, v)
	case <-time.After(time.Second):
		t.Fatal("publish from start hook did not reach the subscriber")
	}
}

func TestChannelListenerIsolation(t *testing.T) {
	ch := NewChannel[int]("test.isolation", config.StreamConfig{})

	var after atomic.Int32
	panicking := ch.SubscribeFunc(func(int) { panic("detector on fire") })
	sane := ch.SubscribeFunc(func(int) { after.Add(1) })
	defer ch.Unsubscribe(panicking)
	defer ch.Unsubscribe(sane)

	ch.Publish(1)
	assert.Equal(t, int32(1), after.Load(), "a panicking listener must not starve the others")
}

func TestChannelDeadListenerAutoRemoved(t *testing.T) {
	var starts, stops atomic.Int32
	ch := NewChannel[int]("test.weak", config.StreamConfig{},
		WithStartGenerate[int](func() { starts.Add(1) }),
		WithStopGenerate[int](func() { stops.Add(1) }),
	)

	w := listener.NewWeak(func(int) {})
	ch.Subscribe(w)
	require.Equal(t, 1, ch.SubscriberCount())
	require.Equal(t, int32(1), starts.Load())

	// Owner goes away without unsubscribing; the next dispatch purges it
	w.Release()
	ch.Publish(1)
	assert.Equal(t, 0, ch.SubscriberCount())
	assert.Equal(t, int32(1), stops.Load(), "purging the last subscriber must stop the producer")
	assert.False(t, ch.Generating())

	// The next subscriber sees a clean producer cycle
	l := ch.SubscribeFunc(func(int) {})
	assert.Equal(t, int32(2), starts.Load())
	ch.Unsubscribe(l)
	assert.Equal(t, int32(2), stops.Load())
}

func TestChannelSubscribeDeadListenerIgnored(t *testing.T) {
	var starts atomic.Int32
	ch := NewChannel[int]("test.dead", config.StreamConfig{},
		WithStartGenerate[int](func() { starts.Add(1) }),
	)

	w := listener.NewWeak(func(int) {})
	w.Release()
	ch.Subscribe(w)

	assert.Equal(t, 0, ch.SubscriberCount())
	assert.Equal(t, int32(0), starts.Load(), "a dead listener must not start the producer")
}

func TestChannelGet(t *testing.T) {
	var starts, stops atomic.Int32
	publishing := make(chan struct{})
	ch := NewChannel[string]("test.get", config.StreamConfig{},
		WithStartGenerate[string](func() { starts.Add(1); close(publishing) }),
		WithStopGenerate[string](func() { stops.Add(1) }),
	)

	go func() {
		<-publishing
		ch.Publish("frame-0")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := ch.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "frame-0", v)

	// Get's transient subscription drove a full producer cycle
	assert.Equal(t, int32(1), starts.Load())
	assert.Equal(t, int32(1), stops.Load())
	assert.Equal(t, 0, ch.SubscriberCount())
}

func TestChannelGetTimeout(t *testing.T) {
	// Nobody ever publishes
	ch := NewChannel[int]("test.get.timeout", config.StreamConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := ch.Get(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTimeout)
	assert.Equal(t, 0, ch.SubscriberCount(), "timed-out Get must leave no subscriber behind")
}

func TestChannelGetCancelled(t *testing.T) {
	ch := NewChannel[int]("test.get.cancel", config.StreamConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ch.Get(ctx)
	assert.ErrorIs(t, err, errors.ErrCancelled)
}

// blockingTransport holds every broadcast until released, so backlogs fill
// up deterministically.
type blockingTransport struct {
	release chan struct{}

	mu   sync.Mutex
	sent [][]byte
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{release: make(chan struct{})}
}

func (b *blockingTransport) Broadcast(ctx context.Context, _ remote.ChannelID, payload []byte) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	b.sent = append(b.sent, append([]byte(nil), payload...))
	b.mu.Unlock()
	return nil
}

func (b *blockingTransport) ForwardToLocal(context.Context, remote.ChannelID) (remote.Subscription, error) {
	panic("not used")
}

func (b *blockingTransport) delivered() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.sent...)
}

func TestChannelRemoteSubscriberRoundTrip(t *testing.T) {
	lb := remote.NewLoopback()
	defer lb.Close()

	channelID := remote.NewChannelID()
	sub, err := lb.ForwardToLocal(context.Background(), channelID)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var starts atomic.Int32
	ch := NewChannel[map[string]int]("test.remote", config.StreamConfig{DiscardBound: 8},
		WithTransport[map[string]int](lb),
		WithStartGenerate[map[string]int](func() { starts.Add(1) }),
	)

	require.NoError(t, ch.SubscribeRemote(channelID))
	assert.Equal(t, int32(1), starts.Load(), "a remote subscriber starts the producer like a local one")
	assert.Equal(t, 1, ch.SubscriberCount())

	ch.Publish(map[string]int{"width": 1024})

	select {
	case payload := <-sub.Payloads():
		assert.JSONEq(t, `{"width":1024}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("payload never crossed the transport")
	}

	ch.UnsubscribeRemote(channelID)
	assert.Equal(t, 0, ch.SubscriberCount())
}

func TestChannelSubscribeRemoteWithoutTransport(t *testing.T) {
	ch := NewChannel[int]("test.notransport", config.StreamConfig{})
	err := ch.SubscribeRemote(remote.NewChannelID())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestChannelDiscardBound(t *testing.T) {
	// With the transport stalled, only the discard bound's worth of payloads
	// may survive, and they must be the most recent ones
	bt := newBlockingTransport()
	ch := NewChannel[int]("test.discard", config.StreamConfig{DiscardBound: 2},
		WithTransport[int](bt),
	)

	channelID := remote.NewChannelID()
	require.NoError(t, ch.SubscribeRemote(channelID))

	for i := 1; i <= 10; i++ {
		ch.Publish(i)
	}

	close(bt.release)
	ch.UnsubscribeRemote(channelID)

	// After unsubscribing the pump still flushes the remaining backlog
	assert.Eventually(t, func() bool {
		return len(bt.delivered()) >= 2
	}, 5*time.Second, 5*time.Millisecond)

	sent := bt.delivered()
	// The pump may have pulled one payload before stalling; at most bound+1
	// payloads are ever delivered and the final one is always the newest
	assert.LessOrEqual(t, len(sent), 3)
	assert.Equal(t, "10", string(sent[len(sent)-1]), "latest payload must survive the discard policy")
}

func TestChannelIdempotentRemoteSubscribe(t *testing.T) {
	lb := remote.NewLoopback()
	defer lb.Close()

	var starts atomic.Int32
	ch := NewChannel[int]("test.remote.idem", config.StreamConfig{},
		WithTransport[int](lb),
		WithStartGenerate[int](func() { starts.Add(1) }),
	)

	channelID := remote.NewChannelID()
	require.NoError(t, ch.SubscribeRemote(channelID))
	require.NoError(t, ch.SubscribeRemote(channelID))
	assert.Equal(t, 1, ch.SubscriberCount())
	assert.Equal(t, int32(1), starts.Load())
}

func TestChannelClose(t *testing.T) {
	lb := remote.NewLoopback()
	defer lb.Close()

	var stops atomic.Int32
	ch := NewChannel[int]("test.close", config.StreamConfig{},
		WithTransport[int](lb),
		WithStopGenerate[int](func() { stops.Add(1) }),
	)

	require.NoError(t, ch.SubscribeRemote(remote.NewChannelID()))
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close()) // idempotent

	assert.Equal(t, int32(1), stops.Load())
	err := ch.SubscribeRemote(remote.NewChannelID())
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
}
