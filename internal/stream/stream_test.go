package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/backpressure"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/batch"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/filter"
)

// chanSink exposes delivered items on a channel so tests can assert on
// ordering with timeouts instead of sleeps.
type chanSink struct {
	ctx   context.Context
	items chan Item
}

func newChanSink(ctx context.Context) *chanSink {
	return &chanSink{ctx: ctx, items: make(chan Item, 256)}
}

func (s *chanSink) Send(item Item) error {
	select {
	case s.items <- item:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *chanSink) Context() context.Context { return s.ctx }
func (s *chanSink) Flush() error             { return nil }

func (s *chanSink) next(t *testing.T) Item {
	t.Helper()
	select {
	case item := <-s.items:
		return item
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stream item")
		return Item{}
	}
}

func (s *chanSink) expectEvent(t *testing.T, typ event.Type) *event.Event {
	t.Helper()
	item := s.next(t)
	if item.Event == nil {
		t.Fatalf("expected single event, got batch of %d", len(item.Batch))
	}
	if item.Event.Type != typ {
		t.Fatalf("event type = %s, want %s", item.Event.Type, typ)
	}
	return item.Event
}

func newTestService(t *testing.T, mutate func(*Options)) *Service {
	t.Helper()
	opts := Options{
		SessionTTL:        time.Hour,
		HeartbeatInterval: time.Hour, // keep heartbeats out of tests unless asked for
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewService(opts)
}

func register(t *testing.T, svc *Service, id string) {
	t.Helper()
	if err := svc.Register(context.Background(), id, "do the thing", nil); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func publish(t *testing.T, svc *Service, id string, typ event.Type) *event.Event {
	t.Helper()
	ev := event.New(id, typ)
	if err := svc.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return ev
}

func runStream(ctx context.Context, st *Stream, sink Sink) <-chan error {
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx, sink) }()
	return done
}

func TestRegisterIdempotent(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")
	register(t, svc, "s1")
	if n := svc.SessionCount(); n != 1 {
		t.Fatalf("session count = %d, want 1", n)
	}
}

func TestPublishUnknownSession(t *testing.T) {
	svc := newTestService(t, nil)
	err := svc.Publish(context.Background(), event.New("nope", event.TypeStepProgress))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("publish = %v, want ErrSessionNotFound", err)
	}
}

func TestPublishRejectsUnknownType(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")
	ev := event.New("s1", event.Type("mystery"))
	if err := svc.Publish(context.Background(), ev); err == nil {
		t.Fatal("publish accepted unknown event type")
	}
}

func TestSequenceAssignment(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")
	for want := uint64(1); want <= 3; want++ {
		ev := publish(t, svc, "s1", event.TypeStepProgress)
		if ev.Seq != want {
			t.Fatalf("seq = %d, want %d", ev.Seq, want)
		}
	}
}

func TestFreshConnectionGetsConnectedMarker(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := svc.Attach(ctx, "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)

	hello := sink.expectEvent(t, event.TypeWorkflowStarted)
	if hello.Message != "Connected to stream" {
		t.Fatalf("marker message = %q", hello.Message)
	}
	if hello.ID != "" || hello.Seq != 0 {
		t.Fatalf("synthetic marker has cursor identity: id=%q seq=%d", hello.ID, hello.Seq)
	}
}

func TestReplayThenLiveInOrder(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")

	var published []*event.Event
	for i := 0; i < 5; i++ {
		published = append(published, publish(t, svc, "s1", event.TypeStepProgress))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := svc.Attach(ctx, "s1", AttachOptions{LastEventID: published[2].ID})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)

	live := publish(t, svc, "s1", event.TypeStepCompleted)

	wantSeqs := []uint64{published[3].Seq, published[4].Seq, live.Seq}
	for _, want := range wantSeqs {
		item := sink.next(t)
		if item.Event == nil {
			t.Fatalf("expected single event, got batch")
		}
		if item.Event.Seq != want {
			t.Fatalf("seq = %d, want %d", item.Event.Seq, want)
		}
	}
	// A resumed connection must not get the connected marker.
	select {
	case item := <-sink.items:
		t.Fatalf("unexpected extra item: %+v", item)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGapMarkerOnStaleCursor(t *testing.T) {
	svc := newTestService(t, func(o *Options) { o.ReplayCapacity = 2 })
	register(t, svc, "s1")

	var published []*event.Event
	for i := 0; i < 5; i++ {
		published = append(published, publish(t, svc, "s1", event.TypeStepProgress))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Cursor points at an evicted event.
	st, err := svc.Attach(ctx, "s1", AttachOptions{LastEventID: published[0].ID})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)

	marker := sink.expectEvent(t, event.TypeWorkflowInterruption)
	if marker.Seq != 0 {
		t.Fatalf("gap marker carries seq %d", marker.Seq)
	}
	// Best-effort delivery of whatever is still retained.
	for _, want := range []uint64{published[3].Seq, published[4].Seq} {
		ev := sink.expectEvent(t, event.TypeStepProgress)
		if ev.Seq != want {
			t.Fatalf("seq = %d, want %d", ev.Seq, want)
		}
	}
}

func TestFilterAppliesToReplayAndLive(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")

	publish(t, svc, "s1", event.TypeStepStarted)
	noisy := event.New("s1", event.TypeReasoningChunk)
	noisy.Visibility = event.VisibilityLiveUIOnly
	if err := svc.Publish(context.Background(), noisy); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := svc.Attach(ctx, "s1", AttachOptions{Filter: filter.UserFacing})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)

	// Replay cursor is empty, so retained events are skipped entirely and
	// only the connected marker arrives.
	sink.expectEvent(t, event.TypeWorkflowStarted)

	liveNoisy := event.New("s1", event.TypeTokenChunk)
	liveNoisy.Visibility = event.VisibilityLiveUIOnly
	if err := svc.Publish(context.Background(), liveNoisy); err != nil {
		t.Fatalf("publish: %v", err)
	}
	kept := publish(t, svc, "s1", event.TypeStepCompleted)

	got := sink.expectEvent(t, event.TypeStepCompleted)
	if got.Seq != kept.Seq {
		t.Fatalf("seq = %d, want %d", got.Seq, kept.Seq)
	}
}

func TestSlowConsumerIsolation(t *testing.T) {
	svc := newTestService(t, func(o *Options) { o.QueueCapacity = 4 })
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fast, err := svc.Attach(ctx, "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("attach fast: %v", err)
	}
	slow, err := svc.Attach(ctx, "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("attach slow: %v", err)
	}

	sink := newChanSink(ctx)
	runStream(ctx, fast, sink)
	sink.expectEvent(t, event.TypeWorkflowStarted)

	// The slow connection never runs its generator; its queue overflows
	// without affecting the fast one.
	const n = 10
	for i := 0; i < n; i++ {
		publish(t, svc, "s1", event.TypeStepProgress)
	}
	// The fast consumer keeps flowing in strict order all the way to the
	// last event.
	var prev uint64
	for {
		ev := sink.expectEvent(t, event.TypeStepProgress)
		if ev.Seq <= prev {
			t.Fatalf("fast consumer saw seq %d after %d", ev.Seq, prev)
		}
		prev = ev.Seq
		if prev == n {
			break
		}
	}

	if got := slow.conn.queue.Len(); got != 4 {
		t.Fatalf("slow queue depth = %d, want 4", got)
	}
	if dropped := slow.conn.queue.Dropped(); dropped != n-4 {
		t.Fatalf("slow queue dropped = %d, want %d", dropped, n-4)
	}
	// DropOldest keeps the newest events.
	ev, err := slow.conn.queue.Dequeue(ctx)
	if err != nil || ev.Seq != n-4+1 {
		t.Fatalf("slow queue head = %v, %v", ev, err)
	}
}

func TestCloseSessionReleasesAllConnections(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sinks []*chanSink
	var dones []<-chan error
	for i := 0; i < 3; i++ {
		st, err := svc.Attach(ctx, "s1", AttachOptions{})
		if err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
		sink := newChanSink(ctx)
		sinks = append(sinks, sink)
		dones = append(dones, runStream(ctx, st, sink))
		sink.expectEvent(t, event.TypeWorkflowStarted)
	}

	if err := svc.CloseSession(ctx, "s1", "workflow finished"); err != nil {
		t.Fatalf("close: %v", err)
	}

	for i, done := range dones {
		terminal := sinks[i].expectEvent(t, event.TypeWorkflowCompleted)
		if terminal.Message != "Stream closed: workflow finished" {
			t.Fatalf("terminal message = %q", terminal.Message)
		}
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("stream %d returned %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("stream %d did not stop", i)
		}
	}
	if n := svc.ActiveStreams(); n != 0 {
		t.Fatalf("active streams = %d after close", n)
	}
	if err := svc.CloseSession(ctx, "s1", "again"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second close = %v, want ErrSessionNotFound", err)
	}
}

func TestCloseDrainsQueueBeforeTerminal(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := svc.Attach(ctx, "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	// Publish before the generator starts so the events sit in the queue
	// when the session closes.
	publish(t, svc, "s1", event.TypeStepProgress)
	publish(t, svc, "s1", event.TypeStepCompleted)
	if err := svc.CloseSession(ctx, "s1", "done"); err != nil {
		t.Fatalf("close: %v", err)
	}

	sink := newChanSink(ctx)
	done := runStream(ctx, st, sink)

	sink.expectEvent(t, event.TypeWorkflowStarted)
	sink.expectEvent(t, event.TypeStepProgress)
	sink.expectEvent(t, event.TypeStepCompleted)
	sink.expectEvent(t, event.TypeWorkflowCompleted)
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
}

func TestReRegisterRefreshesIdleClock(t *testing.T) {
	svc := newTestService(t, func(o *Options) { o.SessionTTL = time.Minute })
	base := time.Now()
	svc.now = func() time.Time { return base }
	register(t, svc, "s1")

	// Re-registering 50s in restarts the idle clock.
	svc.now = func() time.Time { return base.Add(50 * time.Second) }
	register(t, svc, "s1")

	ctx := context.Background()
	if ids := svc.SweepIdle(ctx, base.Add(90*time.Second)); len(ids) != 0 {
		t.Fatalf("sweep evicted %v right after re-registration", ids)
	}
	if ids := svc.SweepIdle(ctx, base.Add(3*time.Minute)); len(ids) != 1 {
		t.Fatalf("idle session survived sweep: %v", ids)
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	svc := newTestService(t, func(o *Options) { o.SessionTTL = time.Minute })
	register(t, svc, "s1")
	register(t, svc, "s2")
	publish(t, svc, "s1", event.TypeStepProgress)

	ctx := context.Background()
	ids := svc.SweepIdle(ctx, time.Now().Add(2*time.Minute))
	if len(ids) != 2 {
		t.Fatalf("evicted %v, want both sessions", ids)
	}
	if err := svc.Publish(ctx, event.New("s1", event.TypeStepProgress)); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("publish after sweep = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Attach(ctx, "s1", AttachOptions{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("attach after sweep = %v, want ErrSessionNotFound", err)
	}
}

func TestSweepKeepsActiveSessions(t *testing.T) {
	svc := newTestService(t, func(o *Options) { o.SessionTTL = time.Minute })
	register(t, svc, "s1")
	publish(t, svc, "s1", event.TypeStepProgress)

	if ids := svc.SweepIdle(context.Background(), time.Now().Add(30*time.Second)); len(ids) != 0 {
		t.Fatalf("sweep evicted %v, want none", ids)
	}
	if n := svc.SessionCount(); n != 1 {
		t.Fatalf("session count = %d, want 1", n)
	}
}

func TestAttachCapacity(t *testing.T) {
	svc := newTestService(t, func(o *Options) { o.MaxStreams = 1 })
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := svc.Attach(ctx, "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if _, err := svc.Attach(ctx, "s1", AttachOptions{}); !errors.Is(err, ErrCapacity) {
		t.Fatalf("second attach = %v, want ErrCapacity", err)
	}

	// Releasing the slot makes room again.
	sink := newChanSink(ctx)
	done := runStream(ctx, st, sink)
	sink.expectEvent(t, event.TypeWorkflowStarted)
	if err := svc.CloseSession(ctx, "s1", ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	<-done

	register(t, svc, "s1")
	if _, err := svc.Attach(ctx, "s1", AttachOptions{}); err != nil {
		t.Fatalf("attach after release: %v", err)
	}
}

func TestBatchingThroughGenerator(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := batch.DefaultConfig()
	cfg.Enabled = true
	cfg.MaxSize = 3
	cfg.MaxDelay = time.Hour // only size triggers the flush here
	st, err := svc.Attach(ctx, "s1", AttachOptions{Batch: &cfg})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)
	sink.expectEvent(t, event.TypeWorkflowStarted)

	for i := 0; i < 3; i++ {
		publish(t, svc, "s1", event.TypeTokenChunk)
	}
	item := sink.next(t)
	if len(item.Batch) != 3 {
		t.Fatalf("batch size = %d, want 3", len(item.Batch))
	}
	for i, ev := range item.Batch {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("batch[%d].Seq = %d", i, ev.Seq)
		}
	}

	// An immediate type flushes what is pending, then goes out alone.
	publish(t, svc, "s1", event.TypeTokenChunk)
	publish(t, svc, "s1", event.TypeError)
	item = sink.next(t)
	if len(item.Batch) != 1 || item.Batch[0].Seq != 4 {
		t.Fatalf("pending flush = %+v", item)
	}
	sink.expectEvent(t, event.TypeError)
}

func TestBatchDelayFlush(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := batch.DefaultConfig()
	cfg.Enabled = true
	cfg.MaxSize = 100
	cfg.MaxDelay = 30 * time.Millisecond
	st, err := svc.Attach(ctx, "s1", AttachOptions{Batch: &cfg})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)
	sink.expectEvent(t, event.TypeWorkflowStarted)

	publish(t, svc, "s1", event.TypeTokenChunk)
	publish(t, svc, "s1", event.TypeTokenChunk)
	item := sink.next(t)
	if len(item.Batch) != 2 {
		t.Fatalf("delay flush batch size = %d, want 2", len(item.Batch))
	}
}

func TestHeartbeat(t *testing.T) {
	svc := newTestService(t, func(o *Options) { o.HeartbeatInterval = 25 * time.Millisecond })
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := svc.Attach(ctx, "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)
	sink.expectEvent(t, event.TypeWorkflowStarted)

	hb := sink.expectEvent(t, event.TypeHeartbeat)
	if hb.ID != "" || hb.Seq != 0 {
		t.Fatalf("heartbeat has cursor identity: id=%q seq=%d", hb.ID, hb.Seq)
	}
}

func TestHeartbeatDisabled(t *testing.T) {
	svc := newTestService(t, func(o *Options) {
		o.HeartbeatInterval = 10 * time.Millisecond
		o.DisableHeartbeats = true
	})
	register(t, svc, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := svc.Attach(ctx, "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)
	sink.expectEvent(t, event.TypeWorkflowStarted)

	// Several intervals pass without a single keepalive.
	select {
	case item := <-sink.items:
		t.Fatalf("unexpected item with heartbeats disabled: %+v", item)
	case <-time.After(80 * time.Millisecond):
	}

	// Live delivery is unaffected.
	live := publish(t, svc, "s1", event.TypeStepProgress)
	if got := sink.expectEvent(t, event.TypeStepProgress); got.Seq != live.Seq {
		t.Fatalf("seq = %d, want %d", got.Seq, live.Seq)
	}
}

func TestReplayDisabledDeliversLiveOnly(t *testing.T) {
	svc := newTestService(t, func(o *Options) { o.DisableReplay = true })
	register(t, svc, "s1")

	first := publish(t, svc, "s1", event.TypeStepProgress)
	publish(t, svc, "s1", event.TypeStepProgress)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The cursor is ignored: no replay, no gap marker.
	st, err := svc.Attach(ctx, "s1", AttachOptions{LastEventID: first.ID})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	runStream(ctx, st, sink)

	live := publish(t, svc, "s1", event.TypeStepCompleted)
	got := sink.expectEvent(t, event.TypeStepCompleted)
	if got.Seq != live.Seq {
		t.Fatalf("seq = %d, want %d", got.Seq, live.Seq)
	}
}

func TestClientDisconnectStopsStream(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")

	sinkCtx, sinkCancel := context.WithCancel(context.Background())
	st, err := svc.Attach(context.Background(), "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(sinkCtx)
	done := runStream(context.Background(), st, sink)
	sink.expectEvent(t, event.TypeWorkflowStarted)

	sinkCancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after disconnect")
	}
	if n := svc.ActiveStreams(); n != 0 {
		t.Fatalf("active streams = %d after disconnect", n)
	}
}

func TestBlockPolicyStallsPublisher(t *testing.T) {
	svc := newTestService(t, func(o *Options) {
		o.QueueCapacity = 1
		o.BlockTimeout = 40 * time.Millisecond
	})
	register(t, svc, "s1")

	ctx := context.Background()
	st, err := svc.Attach(ctx, "s1", AttachOptions{Policy: backpressure.Block})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	publish(t, svc, "s1", event.TypeStepProgress)
	start := time.Now()
	publish(t, svc, "s1", event.TypeStepProgress) // fills, then times out
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("second publish returned in %v, expected block timeout", elapsed)
	}
	if dropped := st.conn.queue.Dropped(); dropped != 0 {
		// Block policy never drops inside the queue; the timeout drop is
		// accounted by the dispatcher, not the queue.
		t.Fatalf("queue dropped = %d, want 0", dropped)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	svc := newTestService(t, nil)
	register(t, svc, "s1")
	register(t, svc, "s2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := svc.Attach(ctx, "s1", AttachOptions{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	sink := newChanSink(ctx)
	done := runStream(ctx, st, sink)
	sink.expectEvent(t, event.TypeWorkflowStarted)

	svc.Shutdown(ctx)
	terminal := sink.expectEvent(t, event.TypeWorkflowCompleted)
	if terminal.Message != "Stream closed: server shutting down" {
		t.Fatalf("terminal message = %q", terminal.Message)
	}
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
	if n := svc.SessionCount(); n != 0 {
		t.Fatalf("session count = %d after shutdown", n)
	}
}
