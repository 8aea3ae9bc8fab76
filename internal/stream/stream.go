package stream

import (
	"context"
	"errors"
	"time"

	"github.com/AbdalrahmanWael/StreamWeaver/internal/backpressure"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/batch"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/filter"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/observe"
	"github.com/AbdalrahmanWael/StreamWeaver/internal/store"
	"github.com/AbdalrahmanWael/StreamWeaver/pkg/log"
)

// ErrSessionNotFound is returned when an operation names a session that
// was never registered or has been evicted.
var ErrSessionNotFound = errors.New("stream: session not found")

// ErrCapacity is returned by Attach when the instance is already serving
// its maximum number of concurrent streams.
var ErrCapacity = errors.New("stream: max concurrent streams reached")

// Item is one unit of delivery on a connection: either a single event or
// a batch, never both.
type Item struct {
	Event *event.Event
	Batch []*event.Event
}

// Sink is the transport half of a connection. Send must not be called
// concurrently; the generator is the only caller. Context reports the
// transport's lifetime: when it is done the generator stops.
type Sink interface {
	Send(item Item) error
	Context() context.Context
	Flush() error
}

// Options configures a Service. Zero fields take the listed defaults.
type Options struct {
	// SessionTTL is how long a session survives without publish activity.
	SessionTTL time.Duration // default 1h
	// ReplayCapacity bounds the per-session replay buffer.
	ReplayCapacity int // default 100
	// DisableReplay turns off event retention entirely: connections get
	// the live tail only and replay cursors are ignored.
	DisableReplay bool
	// HeartbeatInterval paces synthetic heartbeats on idle connections.
	HeartbeatInterval time.Duration // default 30s
	// DisableHeartbeats turns off keepalive synthesis on idle connections.
	DisableHeartbeats bool
	// QueueCapacity bounds each connection's delivery queue.
	QueueCapacity int // default 1000
	// QueuePolicy selects the overflow behavior for delivery queues.
	QueuePolicy backpressure.Policy // default drop_oldest
	// BlockTimeout bounds how long a publish may stall on one Block-policy
	// queue before the event is counted as dropped for that connection.
	BlockTimeout time.Duration // default 5s
	// MaxStreams caps concurrent generator loops on this instance.
	MaxStreams int // default 100
	// SweepInterval paces the idle-session sweeper started by Start.
	SweepInterval time.Duration // default 1m
	// Batch is the default batching configuration for new connections.
	Batch batch.Config

	Logger   log.Logger
	Observer observe.Observer
	Store    store.Store
}

func (o Options) withDefaults() Options {
	if o.SessionTTL <= 0 {
		o.SessionTTL = time.Hour
	}
	if o.ReplayCapacity <= 0 {
		o.ReplayCapacity = 100
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 1000
	}
	if o.QueuePolicy == "" {
		o.QueuePolicy = backpressure.DropOldest
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = 5 * time.Second
	}
	if o.MaxStreams <= 0 {
		o.MaxStreams = 100
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.Batch.MaxSize == 0 {
		o.Batch = batch.DefaultConfig()
	}
	if o.Logger == nil {
		o.Logger = log.NewNop()
	}
	if o.Observer == nil {
		o.Observer = observe.Nop{}
	}
	if o.Store == nil {
		o.Store = store.NewMemory()
	}
	return o
}

// AttachOptions customize one stream attachment.
type AttachOptions struct {
	// LastEventID is the client's replay cursor. Empty means a fresh
	// connection with no replay.
	LastEventID string
	// Filter restricts delivery. Nil delivers everything.
	Filter filter.Predicate
	// Batch overrides the service-wide batching config for this stream.
	Batch *batch.Config
	// Policy overrides the service-wide queue overflow policy.
	Policy backpressure.Policy
}
