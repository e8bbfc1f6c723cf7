package remote

import (
	"context"
	"sync"

	"github.com/delmic/odemis-sub003/errors"
)

// Loopback is an in-process Transport: broadcasts are forwarded directly to
// local subscriptions of the same channel identifier. It backs tests and
// single-process deployments where cells, streams and observers share one
// process but still speak through the transport boundary.
type Loopback struct {
	mu     sync.RWMutex
	subs   map[ChannelID]map[*pumpSubscription]struct{}
	closed bool
}

// NewLoopback creates an empty in-process transport.
func NewLoopback() *Loopback {
	return &Loopback{
		subs: make(map[ChannelID]map[*pumpSubscription]struct{}),
	}
}

// Broadcast implements Transport. Payloads sent to a channel nobody forwards
// are discarded, matching the fire-and-forget wire semantics.
func (l *Loopback) Broadcast(_ context.Context, channelID ChannelID, payload []byte) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return errors.ErrAlreadyStopped
	}
	snapshot := make([]*pumpSubscription, 0, len(l.subs[channelID]))
	for s := range l.subs[channelID] {
		snapshot = append(snapshot, s)
	}
	l.mu.RUnlock()

	for _, s := range snapshot {
		s.put(payload)
	}
	return nil
}

// ForwardToLocal implements Transport.
func (l *Loopback) ForwardToLocal(ctx context.Context, channelID ChannelID) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStopped,
			"Loopback", "ForwardToLocal", "transport closed")
	}

	var sub *pumpSubscription
	sub = newPumpSubscription(ctx, 0, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if set, ok := l.subs[channelID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(l.subs, channelID)
			}
		}
	})

	if l.subs[channelID] == nil {
		l.subs[channelID] = make(map[*pumpSubscription]struct{})
	}
	l.subs[channelID][sub] = struct{}{}
	return sub, nil
}

// SubscriberCount returns the number of live forwards for a channel.
func (l *Loopback) SubscriberCount(channelID ChannelID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[channelID])
}

// Close ends every forward and rejects further use. Idempotent.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	var all []*pumpSubscription
	for _, set := range l.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	l.mu.Unlock()

	for _, s := range all {
		_ = s.Unsubscribe()
	}
	return nil
}
