// Package remote defines the transport boundary between the substrate and
// remote observers.
//
// Attribute cells and data streams consume exactly two capabilities from the
// transport: broadcasting a serialized payload to a channel identifier, and
// forwarding a channel identifier's payloads back into the local process.
// Everything else about the wire (encoding details, discovery, security) is
// the transport implementation's concern.
//
// Two implementations are provided: NATSTransport, which maps channel
// identifiers onto NATS subjects, and Loopback, an in-process transport used
// by tests and single-process deployments.
package remote
