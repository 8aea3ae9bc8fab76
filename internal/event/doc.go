// Package event defines the StreamEvent data model shared by the publish
// path, replay buffer, delivery queues, and transport adapters.
//
// Events are immutable once published: the dispatcher assigns the
// per-session sequence number at publish time and nothing downstream
// mutates the record. Synthetic events (heartbeats, stream markers) carry
// sequence 0 and an empty ID so they never participate in replay cursors.
package event
