package stream

import (
	"context"
	"errors"
	"time"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/backpressure"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
)

// heartbeatSuppressionDepth is the queue depth above which heartbeats are
// skipped: a backlog already proves the connection is alive.
const heartbeatSuppressionDepth = 5

// Stream is one attached connection, ready to be driven by a transport.
type Stream struct {
	svc  *Service
	conn *connection
}

// SessionID returns the session this stream is attached to.
func (st *Stream) SessionID() string { return st.conn.session.id }

// ConnectionID returns the unique ID of this attachment.
func (st *Stream) ConnectionID() string { return st.conn.id }

// Close releases the attachment without delivering anything. Use it when
// the transport fails before the stream can run; otherwise Run detaches.
func (st *Stream) Close() { st.svc.detach(st.conn) }

// Run delivers the stream to sink until the session closes, the client
// disconnects, or sink fails. It sends replay first, then the live tail,
// in strict sequence order. Run detaches the connection on return and
// must be called exactly once.
func (st *Stream) Run(ctx context.Context, sink Sink) error {
	defer st.svc.detach(st.conn)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if sc := sink.Context(); sc != nil {
		stop := context.AfterFunc(sc, cancel)
		defer stop()
	}

	if err := st.replay(sink); err != nil {
		return err
	}

	conn := st.conn
	lastSend := time.Now()
	for {
		var deadline time.Time
		if !st.svc.opts.DisableHeartbeats {
			deadline = lastSend.Add(st.svc.opts.HeartbeatInterval)
		}
		if bd := conn.batcher.Deadline(); !bd.IsZero() && (deadline.IsZero() || bd.Before(deadline)) {
			deadline = bd
		}
		waitCtx, waitCancel := ctx, context.CancelFunc(func() {})
		if !deadline.IsZero() {
			waitCtx, waitCancel = context.WithDeadline(ctx, deadline)
		}
		ev, err := conn.queue.Dequeue(waitCtx)
		waitCancel()

		switch {
		case err == nil:
			if !conn.matches(ev) {
				continue
			}
			sent, err := st.emit(sink, ev)
			if err != nil {
				return err
			}
			if sent {
				lastSend = time.Now()
			}

		case errors.Is(err, backpressure.ErrClosed):
			return st.finish(sink)

		case ctx.Err() != nil:
			// Client gone or server stopping; nothing left to send.
			return ctx.Err()

		default:
			// Our own wait deadline fired: flush an aged batch and keep
			// the connection warm with a heartbeat.
			now := time.Now()
			if bd := conn.batcher.Deadline(); !bd.IsZero() && !now.Before(bd) {
				if err := st.sendBatch(sink); err != nil {
					return err
				}
				lastSend = now
			}
			if !st.svc.opts.DisableHeartbeats && now.Sub(lastSend) >= st.svc.opts.HeartbeatInterval {
				if err := st.heartbeat(sink); err != nil {
					return err
				}
				lastSend = now
			}
		}
	}
}

// replay sends the attach-time snapshot: a gap marker when the client's
// cursor could not be honored, the retained events that pass the filter,
// and a connected marker for fresh (cursorless) connections.
func (st *Stream) replay(sink Sink) error {
	conn := st.conn
	if conn.gap {
		marker := event.Synthetic(conn.session.id, event.TypeWorkflowInterruption,
			"Some events were lost before this connection resumed")
		if conn.matches(marker) {
			if err := sink.Send(Item{Event: marker}); err != nil {
				return err
			}
		}
	}
	for _, ev := range conn.replayEvents {
		if !conn.matches(ev) {
			continue
		}
		if err := sink.Send(Item{Event: ev}); err != nil {
			return err
		}
	}
	conn.replayEvents = nil
	if !conn.resumed {
		hello := event.Synthetic(conn.session.id, event.TypeWorkflowStarted, "Connected to stream")
		if conn.matches(hello) {
			if err := sink.Send(Item{Event: hello}); err != nil {
				return err
			}
		}
	}
	return sink.Flush()
}

// emit delivers one live event, honoring the connection's batching
// config. It reports whether anything reached the sink.
func (st *Stream) emit(sink Sink, ev *event.Event) (bool, error) {
	b := st.conn.batcher
	if !b.Enabled() || b.Immediate(ev.Type) {
		// Pending events must go first to preserve order.
		if b.Pending() > 0 {
			if err := sink.Send(Item{Batch: b.Flush()}); err != nil {
				return false, err
			}
		}
		if err := sink.Send(Item{Event: ev}); err != nil {
			return false, err
		}
		return true, sink.Flush()
	}
	b.Add(ev)
	if b.Full() {
		if err := sink.Send(Item{Batch: b.Flush()}); err != nil {
			return false, err
		}
		return true, sink.Flush()
	}
	return false, nil
}

func (st *Stream) sendBatch(sink Sink) error {
	b := st.conn.batcher
	if b.Pending() == 0 {
		return nil
	}
	if err := sink.Send(Item{Batch: b.Flush()}); err != nil {
		return err
	}
	return sink.Flush()
}

// heartbeat sends a keepalive unless the queue backlog already proves
// liveness or the connection's filter excludes heartbeats.
func (st *Stream) heartbeat(sink Sink) error {
	conn := st.conn
	if conn.queue.Len() > heartbeatSuppressionDepth {
		return nil
	}
	hb := event.Synthetic(conn.session.id, event.TypeHeartbeat, "heartbeat")
	if !conn.matches(hb) {
		return nil
	}
	if err := sink.Send(Item{Event: hb}); err != nil {
		return err
	}
	return sink.Flush()
}

// finish runs when the session closes underneath the connection: it
// flushes any pending batch and sends a terminal marker carrying the
// close reason, then returns cleanly.
func (st *Stream) finish(sink Sink) error {
	if err := st.sendBatch(sink); err != nil {
		return err
	}
	conn := st.conn
	conn.session.mu.Lock()
	reason := conn.session.closeReason
	conn.session.mu.Unlock()

	message := "Stream closed"
	if reason != "" {
		message = "Stream closed: " + reason
	}
	terminal := event.Synthetic(conn.session.id, event.TypeWorkflowCompleted, message)
	if reason != "" {
		terminal.Data = map[string]any{"reason": reason}
	}
	if conn.matches(terminal) {
		if err := sink.Send(Item{Event: terminal}); err != nil {
			return err
		}
	}
	return sink.Flush()
}
