package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delmic/odemis-sub003/errors"
)

func TestBacklogFIFO(t *testing.T) {
	bl := NewBacklog[int](0)
	defer bl.Close()

	require.NoError(t, bl.Put(1))
	require.NoError(t, bl.Put(2))
	require.NoError(t, bl.Put(3))
	assert.Equal(t, 3, bl.Len())

	for _, want := range []int{1, 2, 3} {
		v, ok := bl.TryNext()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, ok := bl.TryNext()
	assert.False(t, ok)
}

func TestBacklogPolicy(t *testing.T) {
	assert.Equal(t, Unbounded, NewBacklog[int](0).Policy())
	assert.Equal(t, Unbounded, NewBacklog[int](-1).Policy())
	assert.Equal(t, DropOldest, NewBacklog[int](1).Policy())
	assert.Equal(t, "drop_oldest", DropOldest.String())
	assert.Equal(t, "unbounded", Unbounded.String())
}

func TestBacklogDropOldest(t *testing.T) {
	var dropped []int
	bl := NewBacklog[int](2, WithDropCallback[int](func(v int) {
		dropped = append(dropped, v)
	}))
	defer bl.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, bl.Put(i))
	}

	// Bound 2: only the two freshest payloads survive
	assert.Equal(t, 2, bl.Len())
	assert.Equal(t, []int{1, 2, 3}, dropped)

	v, ok := bl.TryNext()
	require.True(t, ok)
	assert.Equal(t, 4, v)
	v, ok = bl.TryNext()
	require.True(t, ok)
	assert.Equal(t, 5, v)

	stats := bl.Statistics()
	assert.Equal(t, int64(5), stats.Put)
	assert.Equal(t, int64(3), stats.Dropped)
	assert.Equal(t, int64(2), stats.Delivered)
}

func TestBacklogBoundedStaleness(t *testing.T) {
	// With bound B, a consumer that never reads is never more than B behind
	const bound = 3
	bl := NewBacklog[int](bound)
	defer bl.Close()

	for i := 0; i < 100; i++ {
		require.NoError(t, bl.Put(i))
	}
	assert.Equal(t, bound, bl.Len())

	// The freshest payload is always retained
	var last int
	for {
		v, ok := bl.TryNext()
		if !ok {
			break
		}
		last = v
	}
	assert.Equal(t, 99, last)
}

func TestBacklogNextBlocksUntilPut(t *testing.T) {
	bl := NewBacklog[string](0)
	defer bl.Close()

	done := make(chan string, 1)
	go func() {
		v, err := bl.Next(context.Background())
		if err == nil {
			done <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bl.Put("frame"))

	select {
	case v := <-done:
		assert.Equal(t, "frame", v)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake after Put")
	}
}

func TestBacklogNextContextCancel(t *testing.T) {
	bl := NewBacklog[int](0)
	defer bl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := bl.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBacklogCloseDrains(t *testing.T) {
	bl := NewBacklog[int](0)
	require.NoError(t, bl.Put(1))
	require.NoError(t, bl.Put(2))
	require.NoError(t, bl.Close())

	// Already-queued payloads stay readable after Close
	v, err := bl.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = bl.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = bl.Next(context.Background())
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)

	assert.ErrorIs(t, bl.Put(3), errors.ErrAlreadyStopped)
	require.NoError(t, bl.Close())
}

func TestBacklogCloseWakesConsumer(t *testing.T) {
	bl := NewBacklog[int](0)

	errCh := make(chan error, 1)
	go func() {
		_, err := bl.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bl.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake after Close")
	}
}

func TestBacklogProducerFasterThanConsumer(t *testing.T) {
	const bound = 4
	bl := NewBacklog[int](bound)
	defer bl.Close()

	consumed := make(chan int, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			v, err := bl.Next(ctx)
			if err != nil {
				close(consumed)
				return
			}
			consumed <- v
			time.Sleep(time.Millisecond) // slow consumer
		}
	}()

	const last = 200
	for i := 0; i <= last; i++ {
		require.NoError(t, bl.Put(i))
	}

	// After the producer stops, the last payload must eventually arrive
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-consumed:
			if v == last {
				return
			}
		case <-deadline:
			t.Fatal("last payload never delivered")
		}
	}
}
