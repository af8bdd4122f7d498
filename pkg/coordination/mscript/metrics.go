package mscript

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricNameCallTotal    = "mscript.call.total"
	metricNameCallDuration = "mscript.call.duration"
	metricNameBreakerTrips = "mscript.breaker.trips"
)

// runMetrics collects per-call counters and latency for every script
// invocation against every server. A nil *runMetrics (the default, when no
// MeterProvider is configured) makes every Record* call a no-op.
type runMetrics struct {
	callTotal    metric.Int64Counter
	callDuration metric.Float64Histogram
	breakerTrips metric.Int64Counter
}

func newRunMetrics(mp metric.MeterProvider) (*runMetrics, error) {
	if mp == nil {
		return nil, nil
	}
	meter := mp.Meter(tracerName)

	callTotal, err := meter.Int64Counter(metricNameCallTotal,
		metric.WithDescription("per-server script invocations"), metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	callDuration, err := meter.Float64Histogram(metricNameCallDuration,
		metric.WithDescription("per-server script invocation latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	breakerTrips, err := meter.Int64Counter(metricNameBreakerTrips,
		metric.WithDescription("circuit breaker open-state rejections"), metric.WithUnit("{trip}"))
	if err != nil {
		return nil, err
	}
	return &runMetrics{callTotal: callTotal, callDuration: callDuration, breakerTrips: breakerTrips}, nil
}

func (m *runMetrics) recordCall(ctx context.Context, scriptName, serverID string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String(attrScript, scriptName),
		attribute.String(attrServer, serverID),
		attribute.Bool(attrOK, ok),
	)
	m.callTotal.Add(ctx, 1, attrs)
	m.callDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *runMetrics) recordBreakerTrip(ctx context.Context, serverID string) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.breakerTrips.Add(ctx, 1, metric.WithAttributes(attribute.String(attrServer, serverID)))
}
