// Package buffer provides a thread-safe payload backlog with configurable
// discard policies, used to decouple fast producers from slow consumers.
//
// # Overview
//
// A Backlog sits between one producer and one consumer. The producer calls
// Put; the consumer blocks in Next until a payload is available. When the
// consumer cannot keep up, the configured policy decides what happens:
//
//   - DropOldest (bound B ≥ 1): the backlog never holds more than B
//     payloads; the oldest is discarded to make room for the newest. The
//     consumer observes bounded staleness, and the last payload put before
//     the producer stops is always eventually delivered.
//   - Unbounded (bound 0): every payload is kept until consumed, accepting
//     unbounded memory growth if the consumer stalls. Selecting this
//     trade-off is explicit in configuration, never implicit.
//
// # Quick start
//
//	bl := buffer.NewBacklog[[]byte](8,
//		buffer.WithDropCallback[[]byte](func([]byte) { drops.Inc() }),
//	)
//	go func() {
//		for {
//			payload, err := bl.Next(ctx)
//			if err != nil {
//				return
//			}
//			deliver(payload)
//		}
//	}()
//	bl.Put(frame)
//
// Close wakes any blocked consumer; payloads already in the backlog remain
// readable until drained, after which Next reports errors.ErrAlreadyStopped.
package buffer
