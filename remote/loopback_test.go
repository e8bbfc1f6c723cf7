package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelIDUnique(t *testing.T) {
	a := NewChannelID()
	b := NewChannelID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a.String())
}

func TestLoopbackBroadcastReachesForward(t *testing.T) {
	lb := NewLoopback()
	defer lb.Close()

	id := NewChannelID()
	sub, err := lb.ForwardToLocal(context.Background(), id)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, lb.Broadcast(context.Background(), id, []byte("frame-1")))

	select {
	case payload := <-sub.Payloads():
		assert.Equal(t, []byte("frame-1"), payload)
	case <-time.After(time.Second):
		t.Fatal("payload never forwarded")
	}
}

func TestLoopbackChannelIsolation(t *testing.T) {
	lb := NewLoopback()
	defer lb.Close()

	idA, idB := NewChannelID(), NewChannelID()
	subA, err := lb.ForwardToLocal(context.Background(), idA)
	require.NoError(t, err)
	defer subA.Unsubscribe()

	require.NoError(t, lb.Broadcast(context.Background(), idB, []byte("other")))
	require.NoError(t, lb.Broadcast(context.Background(), idA, []byte("mine")))

	select {
	case payload := <-subA.Payloads():
		assert.Equal(t, []byte("mine"), payload)
	case <-time.After(time.Second):
		t.Fatal("payload never forwarded")
	}
}

func TestLoopbackBroadcastWithoutSubscribers(t *testing.T) {
	lb := NewLoopback()
	defer lb.Close()

	// Fire-and-forget: nobody listening is not an error
	assert.NoError(t, lb.Broadcast(context.Background(), NewChannelID(), []byte("lost")))
}

func TestLoopbackUnsubscribe(t *testing.T) {
	lb := NewLoopback()
	defer lb.Close()

	id := NewChannelID()
	sub, err := lb.ForwardToLocal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, lb.SubscriberCount(id))

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe()) // idempotent

	// Registration is removed and the payload channel closes
	assert.Eventually(t, func() bool {
		return lb.SubscriberCount(id) == 0
	}, time.Second, 10*time.Millisecond)

	select {
	case _, open := <-sub.Payloads():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("payload channel not closed after unsubscribe")
	}
}

func TestLoopbackForwardEndsWithContext(t *testing.T) {
	lb := NewLoopback()
	defer lb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := lb.ForwardToLocal(ctx, NewChannelID())
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-sub.Payloads():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("payload channel not closed after context cancel")
	}
}

func TestLoopbackClose(t *testing.T) {
	lb := NewLoopback()
	id := NewChannelID()
	sub, err := lb.ForwardToLocal(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, lb.Close())
	require.NoError(t, lb.Close()) // idempotent

	select {
	case _, open := <-sub.Payloads():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("payload channel not closed after transport close")
	}

	assert.Error(t, lb.Broadcast(context.Background(), id, []byte("late")))
	_, err = lb.ForwardToLocal(context.Background(), id)
	assert.Error(t, err)
}
