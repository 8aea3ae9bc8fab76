// Package replay provides the bounded per-session ring buffer of recently
// published events, queried by replay cursor when a client reconnects.
//
// The buffer retains a contiguous suffix of a session's sequence numbers;
// once capacity is exceeded the oldest entry is silently evicted. A cursor
// that has rolled out of the retained window is reported as ErrGap so the
// caller can pick a resync strategy; a cursor that was never seen at all
// is the distinct ErrUnknownEvent.
//
// The buffer is not internally synchronized: it is owned by its session
// and every mutation happens under the session's lock.
package replay
