package batch

import (
	"time"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
)

// Config controls batching for one connection.
type Config struct {
	Enabled  bool
	MaxSize  int
	MaxDelay time.Duration
	// ImmediateTypes bypass batching entirely.
	ImmediateTypes []event.Type
}

// DefaultConfig returns the baseline batching configuration: disabled,
// 10 events per batch, 50ms delay, with terminal and error events
// delivered immediately.
func DefaultConfig() Config {
	return Config{
		MaxSize:  10,
		MaxDelay: 50 * time.Millisecond,
		ImmediateTypes: []event.Type{
			event.TypeWorkflowCompleted,
			event.TypeWorkflowInterruption,
			event.TypeError,
			event.TypeHeartbeat,
		},
	}
}

// Batcher accumulates events for one connection.
type Batcher struct {
	cfg       Config
	immediate map[event.Type]struct{}
	pending   []*event.Event
	started   time.Time
}

// New returns a batcher for the given config.
func New(cfg Config) *Batcher {
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}
	imm := make(map[event.Type]struct{}, len(cfg.ImmediateTypes))
	for _, t := range cfg.ImmediateTypes {
		imm[t] = struct{}{}
	}
	return &Batcher{cfg: cfg, immediate: imm}
}

// Enabled reports whether batching is on at all.
func (b *Batcher) Enabled() bool { return b.cfg.Enabled }

// Immediate reports whether events of type t must bypass batching.
func (b *Batcher) Immediate(t event.Type) bool {
	_, ok := b.immediate[t]
	return ok
}

// Add appends ev to the pending batch. The first event of a batch starts
// the delay clock.
func (b *Batcher) Add(ev *event.Event) {
	if len(b.pending) == 0 {
		b.started = time.Now()
	}
	b.pending = append(b.pending, ev)
}

// Full reports whether the pending batch has reached the size budget.
func (b *Batcher) Full() bool { return len(b.pending) >= b.cfg.MaxSize }

// Pending returns the number of accumulated events.
func (b *Batcher) Pending() int { return len(b.pending) }

// Deadline returns when the pending batch must be flushed, or the zero
// time when nothing is pending.
func (b *Batcher) Deadline() time.Time {
	if len(b.pending) == 0 {
		return time.Time{}
	}
	return b.started.Add(b.cfg.MaxDelay)
}

// Flush hands back the pending batch and resets the accumulator.
func (b *Batcher) Flush() []*event.Event {
	out := b.pending
	b.pending = nil
	return out
}
