package replay

import (
	"errors"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
)

// ErrGap signals that the requested cursor is older than the oldest
// retained entry: events between the cursor and the retained window have
// been evicted and cannot be replayed.
var ErrGap = errors.New("replay: cursor older than retained history")

// ErrUnknownEvent signals a cursor that the buffer has never held. It is
// distinct from ErrGap so callers can tell a stale cursor from a bogus one.
var ErrUnknownEvent = errors.New("replay: unknown event id")

// Buffer is a bounded FIFO of the most recent events for one session,
// indexed by event ID for cursor resolution.
type Buffer struct {
	cap     int
	events  []*event.Event
	index   map[string]uint64 // event ID -> sequence, retained entries only
	evicted uint64
	lastSeq uint64
}

// New returns a buffer retaining at most capacity events.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{cap: capacity, index: make(map[string]uint64)}
}

// Add appends ev, evicting the oldest entry once capacity is exceeded.
func (b *Buffer) Add(ev *event.Event) {
	if len(b.events) >= b.cap {
		oldest := b.events[0]
		b.events = b.events[1:]
		delete(b.index, oldest.ID)
		b.evicted++
	}
	b.events = append(b.events, ev)
	b.index[ev.ID] = ev.Seq
	if ev.Seq > b.lastSeq {
		b.lastSeq = ev.Seq
	}
}

// SinceID returns the retained events published after the event with the
// given ID, in ascending sequence order.
//
// An empty ID means "no cursor" and returns nothing. When the ID has been
// evicted, the retained events are returned together with ErrGap so the
// caller can resync and still deliver what is left. An ID the buffer has
// never seen yields ErrUnknownEvent.
func (b *Buffer) SinceID(lastEventID string) ([]*event.Event, error) {
	if lastEventID == "" {
		return nil, nil
	}
	if seq, ok := b.index[lastEventID]; ok {
		return b.successors(seq), nil
	}
	if b.evicted > 0 {
		return b.Events(), ErrGap
	}
	return nil, ErrUnknownEvent
}

// SinceSeq returns the retained events with sequence strictly greater than
// seq, in ascending order. A cursor below the retained window returns the
// retained events together with ErrGap.
func (b *Buffer) SinceSeq(seq uint64) ([]*event.Event, error) {
	if len(b.events) == 0 {
		if b.evicted > 0 && seq < b.lastSeq {
			return nil, ErrGap
		}
		return nil, nil
	}
	if seq+1 < b.OldestSeq() {
		return b.Events(), ErrGap
	}
	return b.successors(seq), nil
}

func (b *Buffer) successors(seq uint64) []*event.Event {
	var out []*event.Event
	for _, ev := range b.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// Events returns a copy of all retained events in order.
func (b *Buffer) Events() []*event.Event {
	out := make([]*event.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Len returns the number of retained events.
func (b *Buffer) Len() int { return len(b.events) }

// OldestSeq returns the sequence of the oldest retained event, or 0 when
// the buffer is empty.
func (b *Buffer) OldestSeq() uint64 {
	if len(b.events) == 0 {
		return 0
	}
	return b.events[0].Seq
}

// LastSeq returns the highest sequence ever added.
func (b *Buffer) LastSeq() uint64 { return b.lastSeq }

// LastID returns the ID of the most recent retained event, or "".
func (b *Buffer) LastID() string {
	if len(b.events) == 0 {
		return ""
	}
	return b.events[len(b.events)-1].ID
}

// Clear drops all retained entries, returning how many were removed.
// The eviction count is preserved so stale cursors still read as gaps.
func (b *Buffer) Clear() int {
	n := len(b.events)
	b.evicted += uint64(n)
	b.events = nil
	b.index = make(map[string]uint64)
	return n
}
