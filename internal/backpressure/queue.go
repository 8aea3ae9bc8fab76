package backpressure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
)

// Policy selects the overflow behavior when the queue is full.
type Policy string

// Overflow policies.
const (
	DropOldest Policy = "drop_oldest"
	DropNewest Policy = "drop_newest"
	Block      Policy = "block"
)

// ParsePolicy converts a policy name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case DropOldest, "":
		return DropOldest, nil
	case DropNewest:
		return DropNewest, nil
	case Block:
		return Block, nil
	default:
		return "", fmt.Errorf("backpressure: unknown policy %q", s)
	}
}

// Result reports what happened to an Enqueue call.
type Result int

const (
	// Accepted means the event was appended without loss.
	Accepted Result = iota
	// DroppedOldest means the head event was evicted to admit the new one.
	DroppedOldest
	// DroppedNewest means the incoming event was discarded.
	DroppedNewest
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = errors.New("backpressure: queue closed")

// Queue is a bounded FIFO of events with a configurable overflow policy.
// It is owned by exactly one connection: a single dispatcher writes, a
// single generator reads. Both ends may block; Close releases them.
type Queue struct {
	mu      sync.Mutex
	items   []*event.Event
	cap     int
	policy  Policy
	dropped uint64
	closed  bool

	// notEmpty and notFull follow the close-and-replace broadcast idiom:
	// waiters grab the current channel under the lock and select on it;
	// a state change closes the channel and installs a fresh one.
	notEmpty chan struct{}
	notFull  chan struct{}
}

// New returns a queue with the given capacity and policy. Capacity must be
// at least 1.
func New(capacity int, policy Policy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		cap:      capacity,
		policy:   policy,
		notEmpty: make(chan struct{}),
		notFull:  make(chan struct{}),
	}
}

// Enqueue appends ev, applying the overflow policy when full. Under Block
// it suspends until a slot frees, ctx is done, or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, ev *event.Event) (Result, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return 0, ErrClosed
		}
		if len(q.items) < q.cap {
			q.items = append(q.items, ev)
			q.wakeReadersLocked()
			q.mu.Unlock()
			return Accepted, nil
		}
		switch q.policy {
		case DropOldest:
			q.items = q.items[1:]
			q.items = append(q.items, ev)
			q.dropped++
			q.mu.Unlock()
			return DroppedOldest, nil
		case DropNewest:
			q.dropped++
			q.mu.Unlock()
			return DroppedNewest, nil
		}
		// Block: wait for a slot or cancellation.
		wait := q.notFull
		q.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Dequeue removes and returns the head event, suspending while the queue
// is empty. Once the queue is closed it drains the retained items and then
// reports ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (*event.Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.wakeWritersLocked()
			q.mu.Unlock()
			return ev, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		wait := q.notEmpty
		q.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close marks the queue closed and releases all suspended operations.
// Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notEmpty)
	close(q.notFull)
}

func (q *Queue) wakeReadersLocked() {
	if q.closed {
		return
	}
	close(q.notEmpty)
	q.notEmpty = make(chan struct{})
}

func (q *Queue) wakeWritersLocked() {
	if q.closed {
		return
	}
	close(q.notFull)
	q.notFull = make(chan struct{})
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return q.cap }

// Policy returns the configured overflow policy.
func (q *Queue) Policy() Policy { return q.policy }

// Dropped returns the number of events lost to the overflow policy.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
