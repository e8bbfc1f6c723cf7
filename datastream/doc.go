// Package datastream provides publish/subscribe channels for continuous
// payloads such as camera frames.
//
// # Producer lifecycle
//
// A Channel does not acquire data by itself: the producer hooks given at
// construction are invoked on subscriber-count transitions. StartGenerate
// runs exactly once each time the count goes from zero to non-zero, and
// StopGenerate exactly once each time it returns to zero. Subscribing and
// unsubscribing within a non-empty window never re-triggers the hooks, so a
// camera keeps acquiring while at least one observer is interested and is
// idle otherwise.
//
// # Delivery
//
// Publish hands the payload synchronously to every local subscriber, each
// invoked in isolation. Remote subscribers are served through per-subscriber
// backlogs flushed by pump goroutines: with a discard bound B, a slow remote
// consumer lags at most B payloads behind the freshest one; with a bound of
// zero, every payload is kept at the cost of unbounded memory.
//
// Get is the single-shot convenience: it subscribes a transient listener,
// waits for the first payload published after the call began, and
// unsubscribes, triggering a normal start/stop cycle when it is the only
// subscriber.
package datastream
