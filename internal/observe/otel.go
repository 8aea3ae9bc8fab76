package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelObserver bridges the core's hooks onto OpenTelemetry instruments.
// The caller wires the meter provider and exporter; this type only
// records.
type OTelObserver struct {
	published  metric.Int64Counter
	dropped    metric.Int64Counter
	streams    metric.Int64UpDownCounter
	queueDepth metric.Int64Gauge
	latency    metric.Float64Histogram
}

// NewOTel creates the instruments on the given meter.
func NewOTel(meter metric.Meter) (*OTelObserver, error) {
	published, err := meter.Int64Counter("streamweaver.events.published",
		metric.WithDescription("Events accepted by the publish path"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("streamweaver.events.dropped",
		metric.WithDescription("Events lost to a backpressure policy"))
	if err != nil {
		return nil, err
	}
	streams, err := meter.Int64UpDownCounter("streamweaver.streams.active",
		metric.WithDescription("Currently attached stream connections"))
	if err != nil {
		return nil, err
	}
	queueDepth, err := meter.Int64Gauge("streamweaver.queue.depth",
		metric.WithDescription("Delivery queue depth after the last enqueue"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("streamweaver.publish.duration",
		metric.WithDescription("Publish path latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &OTelObserver{
		published:  published,
		dropped:    dropped,
		streams:    streams,
		queueDepth: queueDepth,
		latency:    latency,
	}, nil
}

func (o *OTelObserver) OnPublish(sessionID, eventType string) {
	o.published.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("event_type", eventType),
	))
}

func (o *OTelObserver) OnDrop(sessionID, policy string) {
	o.dropped.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("policy", policy),
	))
}

func (o *OTelObserver) OnAttach(sessionID string) {
	o.streams.Add(context.Background(), 1)
}

func (o *OTelObserver) OnDetach(sessionID string) {
	o.streams.Add(context.Background(), -1)
}

func (o *OTelObserver) OnQueueDepth(sessionID string, depth int) {
	o.queueDepth.Record(context.Background(), int64(depth), metric.WithAttributes(
		attribute.String("session_id", sessionID),
	))
}

func (o *OTelObserver) OnPublishLatency(d time.Duration) {
	o.latency.Record(context.Background(), d.Seconds())
}
