package remote

import (
	"context"

	"github.com/google/uuid"
)

// ChannelID identifies one remote subscription channel. Cells and streams
// hand these out to remote subscribers; the transport maps them onto its own
// addressing scheme.
type ChannelID string

// NewChannelID returns a fresh, globally unique channel identifier.
func NewChannelID() ChannelID {
	return ChannelID(uuid.NewString())
}

// String returns the identifier as a plain string.
func (id ChannelID) String() string {
	return string(id)
}

// Subscription is a live forward of a remote channel into the local process.
type Subscription interface {
	// Payloads returns the stream of payloads arriving on the channel.
	// The channel is closed when the subscription ends.
	Payloads() <-chan []byte

	// Unsubscribe ends the forward. Idempotent.
	Unsubscribe() error
}

// Transport is the capability the substrate consumes to reach remote
// observers. Broadcast publishes a serialized payload to everyone listening
// on channelID; ForwardToLocal turns a remote channel into a local payload
// stream for the remote-subscription listening loop.
type Transport interface {
	Broadcast(ctx context.Context, channelID ChannelID, payload []byte) error
	ForwardToLocal(ctx context.Context, channelID ChannelID) (Subscription, error)
}
