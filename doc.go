// Package odemis provides the shared concurrency and communication substrate
// for a microscope-control platform.
//
// # Overview
//
// Every hardware-driving component in the platform needs the same three
// primitives, and needs them to behave identically whether the observer
// lives in the same process or on the other side of a message bus:
//
//   - Attribute cells: validated, observable value holders used to expose
//     driver settings and state (package attribute).
//   - Data streams: publish/subscribe channels for continuous payloads such
//     as camera frames, whose producer is started and stopped by subscriber
//     count (package datastream).
//   - Tasks: cancellable background operations with optional progress
//     estimation, run on bounded worker pools (package task).
//
// Remote observers are just another kind of subscriber: cells and streams
// broadcast serialized values through the remote.Transport boundary, and the
// registry package bridges incoming remote subscriptions back onto local
// subscribe calls.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│      Drivers / Algorithms           │  autofocus, stage motion,
//	│     (external to this module)       │  acquisition, alignment
//	└─────────────────────────────────────┘
//	           ↓ create and expose
//	┌─────────────────────────────────────┐
//	│  attribute.Cell   datastream.Channel│  observable state,
//	│        task.Executor                │  continuous data, work
//	└─────────────────────────────────────┘
//	           ↓ fan out via
//	┌─────────────────────────────────────┐
//	│   remote.Transport + registry       │  NATS-backed broadcast and
//	│                                     │  remote subscription bridge
//	└─────────────────────────────────────┘
//
// # Delivery model
//
// Local subscribers are invoked synchronously and in isolation: one
// listener's failure never reaches the publisher or the other listeners.
// Remote subscribers are served through per-subscriber bounded backlogs with
// an explicit discard policy, so a slow consumer observes bounded staleness
// instead of stalling the producer. Guaranteed delivery and historical
// storage are out of scope.
package odemis
