package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/backpressure"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/batch"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/replay"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/store"
	"github.com/AbdalrahmanWael/StreamWeaver/pkg/log"
)

// Service is the session registry and dispatcher.
type Service struct {
	opts   Options
	logger log.Logger

	mu       sync.Mutex
	sessions map[string]*session

	// active counts running generator loops across all sessions.
	active atomic.Int64

	now func() time.Time
}

// NewService returns a Service with the given options.
func NewService(opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		opts:     opts,
		logger:   opts.Logger.With(log.Component("stream")),
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Register creates the session if it does not exist and refreshes its
// metadata record. Registering an existing session is a no-op on the
// in-memory state, so callers may retry freely.
func (s *Service) Register(ctx context.Context, sessionID, userRequest string, metadata map[string]any) error {
	if sessionID == "" {
		return fmt.Errorf("stream: session id is required")
	}
	now := s.now().UTC()

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.sessions[sessionID] = newSession(sessionID, s.opts.ReplayCapacity, now)
	}
	s.mu.Unlock()
	if ok {
		// Re-registration restarts the idle clock the sweeper checks.
		sess.mu.Lock()
		sess.lastActivity = now
		sess.mu.Unlock()
	}

	rec := store.Record{
		SessionID:    sessionID,
		UserRequest:  userRequest,
		Metadata:     metadata,
		Status:       store.StatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}
	if prev, err := s.opts.Store.Get(ctx, sessionID); err == nil {
		rec.CreatedAt = prev.CreatedAt
		if userRequest == "" {
			rec.UserRequest = prev.UserRequest
		}
	}
	if err := s.opts.Store.Put(ctx, sessionID, rec, s.opts.SessionTTL); err != nil {
		return fmt.Errorf("stream: persist session %s: %w", sessionID, err)
	}
	if !ok {
		s.logger.Info("session registered", log.Str("session", sessionID))
	}
	return nil
}

// Publish assigns the next sequence number to ev, records it in the
// session's replay buffer, and fans it out to every attached connection
// under the session's overflow policies.
func (s *Service) Publish(ctx context.Context, ev *event.Event) error {
	if ev == nil || ev.SessionID == "" {
		return fmt.Errorf("stream: event with session id is required")
	}
	if !ev.Type.Valid() {
		return fmt.Errorf("stream: unknown event type %q", ev.Type)
	}
	if ev.Visibility == "" {
		ev.Visibility = event.VisibilityUserFacing
	} else if !ev.Visibility.Valid() {
		return fmt.Errorf("stream: unknown visibility %q", ev.Visibility)
	}
	start := s.now()

	sess, err := s.getSession(ctx, ev.SessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return ErrSessionNotFound
	}
	sess.nextSeq++
	ev.Seq = sess.nextSeq
	if !s.opts.DisableReplay {
		sess.buffer.Add(ev)
	}
	sess.lastActivity = start
	for _, conn := range sess.conns {
		s.deliver(ctx, conn, ev)
	}
	sess.mu.Unlock()

	s.opts.Observer.OnPublish(ev.SessionID, string(ev.Type))
	s.opts.Observer.OnPublishLatency(s.now().Sub(start))
	s.touchSession(ctx, ev.SessionID, start)
	return nil
}

// deliver enqueues ev on one connection, charging overflow to that
// connection alone. Called with the session lock held.
func (s *Service) deliver(ctx context.Context, conn *connection, ev *event.Event) {
	enqueueCtx := ctx
	var cancel context.CancelFunc
	if conn.queue.Policy() == backpressure.Block {
		enqueueCtx, cancel = context.WithTimeout(ctx, s.opts.BlockTimeout)
	}
	res, err := conn.queue.Enqueue(enqueueCtx, ev)
	if cancel != nil {
		cancel()
	}
	switch {
	case err == backpressure.ErrClosed:
		// Connection is detaching; nothing to deliver.
		return
	case err != nil:
		s.opts.Observer.OnDrop(ev.SessionID, "block_timeout")
		s.logger.Warn("blocked consumer timed out, event dropped",
			log.Str("session", ev.SessionID), log.Str("connection", conn.id))
		return
	}
	switch res {
	case backpressure.DroppedOldest, backpressure.DroppedNewest:
		s.opts.Observer.OnDrop(ev.SessionID, string(conn.queue.Policy()))
	}
	s.opts.Observer.OnQueueDepth(ev.SessionID, conn.queue.Len())
}

// touchSession refreshes the persisted TTL after publish activity.
// Persistence failures here are logged, not surfaced: the event has
// already been delivered in process.
func (s *Service) touchSession(ctx context.Context, sessionID string, now time.Time) {
	rec, err := s.opts.Store.Get(ctx, sessionID)
	if err != nil {
		return
	}
	rec.LastActivity = now.UTC()
	if err := s.opts.Store.Put(ctx, sessionID, rec, s.opts.SessionTTL); err != nil {
		s.logger.Warn("session activity refresh failed",
			log.Str("session", sessionID), log.Err(err))
	}
}

// Attach opens a stream on the session and returns the handle the
// transport drives with Run. The replay snapshot and the connection
// registration happen atomically, so no event is missed or duplicated
// between replay and the live tail.
func (s *Service) Attach(ctx context.Context, sessionID string, opts AttachOptions) (*Stream, error) {
	if n := s.active.Add(1); n > int64(s.opts.MaxStreams) {
		s.active.Add(-1)
		return nil, ErrCapacity
	}
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		s.active.Add(-1)
		return nil, err
	}

	policy := opts.Policy
	if policy == "" {
		policy = s.opts.QueuePolicy
	}
	batchCfg := s.opts.Batch
	if opts.Batch != nil {
		batchCfg = *opts.Batch
	}
	conn := &connection{
		id:      uuid.NewString(),
		session: sess,
		queue:   backpressure.New(s.opts.QueueCapacity, policy),
		pred:    opts.Filter,
		batcher: batch.New(batchCfg),
		resumed: opts.LastEventID != "",
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		s.active.Add(-1)
		return nil, ErrSessionNotFound
	}
	if !s.opts.DisableReplay {
		events, replayErr := sess.buffer.SinceID(opts.LastEventID)
		switch replayErr {
		case nil:
		case replay.ErrGap, replay.ErrUnknownEvent:
			// Either way the client's cursor cannot be honored exactly; it
			// gets an interruption marker plus whatever is still retained.
			conn.gap = true
		default:
			sess.mu.Unlock()
			s.active.Add(-1)
			return nil, replayErr
		}
		conn.replayEvents = events
	}
	sess.conns[conn.id] = conn
	sess.mu.Unlock()

	s.opts.Observer.OnAttach(sessionID)
	s.logger.Debug("stream attached",
		log.Str("session", sessionID),
		log.Str("connection", conn.id),
		log.Int("replay", len(conn.replayEvents)),
		log.Bool("gap", conn.gap))
	return &Stream{svc: s, conn: conn}, nil
}

func (s *Service) detach(conn *connection) {
	sess := conn.session
	sess.mu.Lock()
	delete(sess.conns, conn.id)
	sess.mu.Unlock()
	conn.queue.Close()
	s.active.Add(-1)
	s.opts.Observer.OnDetach(sess.id)
}

// CloseSession ends the session: every attached connection drains its
// queue, receives a terminal marker carrying reason, and stops. The
// persisted record is removed.
func (s *Service) CloseSession(ctx context.Context, sessionID, reason string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		if _, err := s.opts.Store.Get(ctx, sessionID); err != nil {
			return ErrSessionNotFound
		}
		return s.opts.Store.Delete(ctx, sessionID)
	}

	sess.mu.Lock()
	sess.closed = true
	sess.closeReason = reason
	conns := make([]*connection, 0, len(sess.conns))
	for _, conn := range sess.conns {
		conns = append(conns, conn)
	}
	sess.mu.Unlock()

	for _, conn := range conns {
		conn.queue.Close()
	}
	if err := s.opts.Store.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("session record delete failed",
			log.Str("session", sessionID), log.Err(err))
	}
	s.logger.Info("session closed",
		log.Str("session", sessionID),
		log.Str("reason", reason),
		log.Int("connections", len(conns)))
	return nil
}

// getSession returns the in-memory session, materializing one from the
// persisted record when another instance (or a previous run) registered
// it. A materialized session starts with an empty replay buffer.
func (s *Service) getSession(ctx context.Context, sessionID string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}
	if _, err := s.opts.Store.Get(ctx, sessionID); err != nil {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[sessionID]; ok {
		return sess, nil
	}
	sess = newSession(sessionID, s.opts.ReplayCapacity, s.now())
	s.sessions[sessionID] = sess
	return sess, nil
}

// SweepIdle evicts every session whose last publish activity is older
// than the session TTL, closing its connections with an expiry marker.
// It returns the evicted session IDs.
func (s *Service) SweepIdle(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	var stale []*session
	for _, sess := range s.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.lastActivity) > s.opts.SessionTTL
		sess.mu.Unlock()
		if idle {
			stale = append(stale, sess)
			delete(s.sessions, sess.id)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, sess := range stale {
		sess.mu.Lock()
		sess.closed = true
		sess.closeReason = "session expired"
		conns := make([]*connection, 0, len(sess.conns))
		for _, conn := range sess.conns {
			conns = append(conns, conn)
		}
		sess.mu.Unlock()
		for _, conn := range conns {
			conn.queue.Close()
		}
		if err := s.opts.Store.Delete(ctx, sess.id); err != nil {
			s.logger.Warn("expired session record delete failed",
				log.Str("session", sess.id), log.Err(err))
		}
		ids = append(ids, sess.id)
	}
	if len(ids) > 0 {
		s.logger.Info("idle sessions evicted", log.Int("count", len(ids)))
	}
	return ids
}

// Start runs the idle sweeper until ctx is done. Call it in its own
// goroutine.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.SweepIdle(ctx, now)
		}
	}
}

// Shutdown closes every session, releasing all attached streams.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		if err := s.CloseSession(ctx, id, "server shutting down"); err != nil && err != ErrSessionNotFound {
			s.logger.Warn("session close during shutdown failed",
				log.Str("session", id), log.Err(err))
		}
	}
}

// SessionStats is a point-in-time view of one session's delivery state.
type SessionStats struct {
	SessionID   string `json:"sessionId"`
	Connections int    `json:"connections"`
	Buffered    int    `json:"buffered"`
	LastSeq     uint64 `json:"lastSeq"`
	QueueDepth  int    `json:"queueDepth"`
	Dropped     uint64 `json:"dropped"`
}

// Stats summarizes the whole instance.
type Stats struct {
	Sessions      int            `json:"sessions"`
	ActiveStreams int            `json:"activeStreams"`
	MaxStreams    int            `json:"maxStreams"`
	PerSession    []SessionStats `json:"perSession"`
}

// SessionCount returns the number of live in-memory sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ActiveStreams returns the number of running generator loops.
func (s *Service) ActiveStreams() int {
	return int(s.active.Load())
}

// Stats returns a snapshot of every session's delivery state.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	out := Stats{
		Sessions:      len(sessions),
		ActiveStreams: s.ActiveStreams(),
		MaxStreams:    s.opts.MaxStreams,
	}
	for _, sess := range sessions {
		sess.mu.Lock()
		st := SessionStats{
			SessionID:   sess.id,
			Connections: len(sess.conns),
			Buffered:    sess.buffer.Len(),
			LastSeq:     sess.buffer.LastSeq(),
		}
		for _, conn := range sess.conns {
			st.QueueDepth += conn.queue.Len()
			st.Dropped += conn.queue.Dropped()
		}
		sess.mu.Unlock()
		out.PerSession = append(out.PerSession, st)
	}
	return out
}
