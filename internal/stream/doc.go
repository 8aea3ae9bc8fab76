// Package stream is the delivery core: it owns the session registry,
// assigns per-session sequence numbers, fans published events out to
// per-connection bounded queues, and drives each connection's generator
// loop (replay, live tail, batching, heartbeats).
//
// Transports plug in through the Sink interface. The package never
// touches sockets; it produces an ordered series of Items and the
// transport decides how to frame them.
package stream
