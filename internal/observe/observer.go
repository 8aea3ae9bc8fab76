package observe

import (
	"time"

	"github.com/AbdalrahmanWael/StreamWeaver/pkg/log"
)

// Observer receives counters and gauges from the streaming core.
// Implementations must be cheap and must never block the publish path.
type Observer interface {
	OnPublish(sessionID, eventType string)
	OnDrop(sessionID, policy string)
	OnAttach(sessionID string)
	OnDetach(sessionID string)
	OnQueueDepth(sessionID string, depth int)
	OnPublishLatency(d time.Duration)
}

// Nop is the default observer; it does nothing.
type Nop struct{}

func (Nop) OnPublish(string, string)       {}
func (Nop) OnDrop(string, string)          {}
func (Nop) OnAttach(string)                {}
func (Nop) OnDetach(string)                {}
func (Nop) OnQueueDepth(string, int)       {}
func (Nop) OnPublishLatency(time.Duration) {}

type multi []Observer

// Multi fans observations out to every given observer.
func Multi(obs ...Observer) Observer { return multi(obs) }

func (m multi) OnPublish(sessionID, eventType string) {
	for _, o := range m {
		o.OnPublish(sessionID, eventType)
	}
}

func (m multi) OnDrop(sessionID, policy string) {
	for _, o := range m {
		o.OnDrop(sessionID, policy)
	}
}

func (m multi) OnAttach(sessionID string) {
	for _, o := range m {
		o.OnAttach(sessionID)
	}
}

func (m multi) OnDetach(sessionID string) {
	for _, o := range m {
		o.OnDetach(sessionID)
	}
}

func (m multi) OnQueueDepth(sessionID string, depth int) {
	for _, o := range m {
		o.OnQueueDepth(sessionID, depth)
	}
}

func (m multi) OnPublishLatency(d time.Duration) {
	for _, o := range m {
		o.OnPublishLatency(d)
	}
}

// LogObserver writes observations as debug log lines. Useful in
// development and tests where no metrics pipeline exists.
type LogObserver struct {
	logger log.Logger
}

// NewLogObserver returns an observer logging through the given logger.
func NewLogObserver(logger log.Logger) *LogObserver {
	return &LogObserver{logger: logger.With(log.Component("observe"))}
}

func (o *LogObserver) OnPublish(sessionID, eventType string) {
	o.logger.Debug("event published", log.Str("session", sessionID), log.Str("type", eventType))
}

func (o *LogObserver) OnDrop(sessionID, policy string) {
	o.logger.Warn("event dropped", log.Str("session", sessionID), log.Str("policy", policy))
}

func (o *LogObserver) OnAttach(sessionID string) {
	o.logger.Debug("stream attached", log.Str("session", sessionID))
}

func (o *LogObserver) OnDetach(sessionID string) {
	o.logger.Debug("stream detached", log.Str("session", sessionID))
}

func (o *LogObserver) OnQueueDepth(sessionID string, depth int) {
	o.logger.Debug("queue depth", log.Str("session", sessionID), log.Int("depth", depth))
}

func (o *LogObserver) OnPublishLatency(d time.Duration) {
	o.logger.Debug("publish latency", log.Dur("elapsed", d))
}
