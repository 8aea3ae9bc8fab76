// Package backpressure provides the bounded per-connection delivery queue
// that decouples publish rate from consumer drain rate.
//
// A Queue has a fixed capacity and one of three overflow policies:
// DropOldest evicts the head to admit the new event, DropNewest discards
// the incoming event, and Block suspends the publisher until a slot frees
// up or the context is cancelled. Closing the queue promptly releases any
// suspended Enqueue or Dequeue; a closed queue still drains its retained
// items before Dequeue reports ErrClosed.
package backpressure
