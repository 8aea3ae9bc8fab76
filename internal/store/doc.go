// Package store defines the session metadata persistence contract and its
// backends: in-memory (development and tests), Pebble (single-node
// durability), and Redis (metadata visibility across instances).
//
// Only session metadata goes through a Store. Replay buffers and delivery
// queues are process-local by design; a distributed backend does not
// distribute them.
package store
