package remote

import (
	"context"
	"sync"

	"github.com/delmic/odemis-sub003/pkg/buffer"
)

// pumpSubscription adapts a push-style payload source onto the Subscription
// interface through a backlog and a pump goroutine, so a slow local consumer
// never blocks the source.
type pumpSubscription struct {
	backlog *buffer.Backlog[[]byte]
	out     chan []byte
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
	onStop  func()
}

// newPumpSubscription starts the pump. bound selects the backlog discard
// policy (0 for unbounded). onStop runs exactly once when the subscription
// ends, whichever side ends it.
func newPumpSubscription(ctx context.Context, bound int, onStop func()) *pumpSubscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &pumpSubscription{
		backlog: buffer.NewBacklog[[]byte](bound),
		out:     make(chan []byte),
		cancel:  cancel,
		done:    make(chan struct{}),
		onStop:  onStop,
	}
	go s.pump(ctx)
	return s
}

func (s *pumpSubscription) pump(ctx context.Context) {
	defer close(s.out)
	defer s.stop()

	for {
		payload, err := s.backlog.Next(ctx)
		if err != nil {
			return
		}
		select {
		case s.out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

// put feeds one payload into the subscription.
func (s *pumpSubscription) put(payload []byte) {
	_ = s.backlog.Put(payload) // dropped after Unsubscribe, by contract
}

func (s *pumpSubscription) stop() {
	s.once.Do(func() {
		_ = s.backlog.Close()
		s.cancel()
		close(s.done)
		if s.onStop != nil {
			s.onStop()
		}
	})
}

// Payloads implements Subscription.
func (s *pumpSubscription) Payloads() <-chan []byte {
	return s.out
}

// Unsubscribe implements Subscription. Idempotent.
func (s *pumpSubscription) Unsubscribe() error {
	s.stop()
	return nil
}
