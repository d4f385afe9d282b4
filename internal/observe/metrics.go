// Package observe provides application-wide observability primitives for
// RoadScribe: OpenTelemetry metrics with a Prometheus exporter bridge so the
// standard /metrics endpoint keeps working.
//
// Tests should use [NewMetrics] with a custom [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all RoadScribe metrics.
const meterName = "github.com/autonomi-lab/roadscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ClassifyDuration tracks transcript classification latency.
	ClassifyDuration metric.Float64Histogram

	// Transcripts counts finalized transcripts received from the recognizer.
	Transcripts metric.Int64Counter

	// Records counts issue records written to the store. Use with attribute:
	//   attribute.String("type", ...)
	Records metric.Int64Counter

	// Reconnects counts transport reconnection attempts.
	Reconnects metric.Int64Counter

	// DroppedBlocks counts capture blocks discarded while the send gate was
	// shut.
	DroppedBlocks metric.Int64Counter

	// ServiceFaults counts non-success statuses received from the service.
	ServiceFaults metric.Int64Counter

	// ActiveSessions tracks the number of open test sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter
}

// classifyBuckets defines histogram bucket boundaries (in seconds) for the
// in-process classification path.
var classifyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ClassifyDuration, err = m.Float64Histogram("roadscribe.classify.duration",
		metric.WithDescription("Latency of transcript classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(classifyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Transcripts, err = m.Int64Counter("roadscribe.transcripts",
		metric.WithDescription("Finalized transcripts received."),
	); err != nil {
		return nil, err
	}

	if met.Records, err = m.Int64Counter("roadscribe.records",
		metric.WithDescription("Issue records written to the store."),
	); err != nil {
		return nil, err
	}

	if met.Reconnects, err = m.Int64Counter("roadscribe.transport.reconnects",
		metric.WithDescription("Transport reconnection attempts."),
	); err != nil {
		return nil, err
	}

	if met.DroppedBlocks, err = m.Int64Counter("roadscribe.capture.dropped_blocks",
		metric.WithDescription("Capture blocks discarded while not forwarding."),
	); err != nil {
		return nil, err
	}

	if met.ServiceFaults, err = m.Int64Counter("roadscribe.service.faults",
		metric.WithDescription("Non-success statuses received from the recognition service."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("roadscribe.sessions.active",
		metric.WithDescription("Open test sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordAdded increments the record counter with its type attribute.
func (m *Metrics) RecordAdded(ctx context.Context, issueType string) {
	m.Records.Add(ctx, 1, metric.WithAttributes(attribute.String("type", issueType)))
}
