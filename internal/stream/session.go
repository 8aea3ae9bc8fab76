package stream

import (
	"sync"
	"time"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/backpressure"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/batch"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/filter"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/replay"
)

// session holds the in-process state for one workflow session. The mutex
// serializes sequence assignment, buffer appends, fan-out, and connection
// attach/detach, which is what guarantees every connection observes
// events in sequence order.
type session struct {
	id string

	mu           sync.Mutex
	buffer       *replay.Buffer
	conns        map[string]*connection
	nextSeq      uint64
	lastActivity time.Time
	closed       bool
	closeReason  string
}

func newSession(id string, replayCap int, now time.Time) *session {
	return &session{
		id:           id,
		buffer:       replay.New(replayCap),
		conns:        make(map[string]*connection),
		lastActivity: now,
	}
}

// connection is one attached stream: a bounded delivery queue plus the
// delivery-shaping state (filter, batcher, replay snapshot). The snapshot
// is taken under the session lock at attach time, so replay plus the live
// queue covers every event exactly once.
type connection struct {
	id      string
	session *session
	queue   *backpressure.Queue
	pred    filter.Predicate
	batcher *batch.Batcher

	replayEvents []*event.Event
	gap          bool
	resumed      bool
}

func (c *connection) matches(ev *event.Event) bool {
	if c.pred == nil {
		return true
	}
	return c.pred.Match(ev)
}
