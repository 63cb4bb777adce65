// Package telemetry holds the tracing and metric instruments of remote list
// calls. Instruments use the global otel providers, which are no-ops until
// the application installs real ones.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "listbind/list"

// Attribute keys
const (
	AttrList      = "listbind.list"
	AttrOperation = "listbind.operation"
	AttrField     = "listbind.field"
	AttrOutcome   = "listbind.outcome"
)

var tracer = otel.Tracer(instrumentation)

// StartSpan starts a span for a remote list operation.
func StartSpan(ctx context.Context, op, list string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String(AttrList, list),
		attribute.String(AttrOperation, op),
	)
	return tracer.Start(ctx, "list."+op, trace.WithAttributes(attrs...))
}

// EndSpan records err on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Metrics are the counters of the list layer.
type Metrics struct {
	RemoteCalls      metric.Int64Counter
	RemoteErrors     metric.Int64Counter
	RecordsLoaded    metric.Int64Counter
	Degradations     metric.Int64Counter
	PartialsHydrated metric.Int64Counter
	Submits          metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.RemoteCalls, err = meter.Int64Counter("listbind_remote_calls_total",
		metric.WithDescription("Remote list calls")); err != nil {
		return nil, err
	}
	if m.RemoteErrors, err = meter.Int64Counter("listbind_remote_errors_total",
		metric.WithDescription("Failed remote list calls")); err != nil {
		return nil, err
	}
	if m.RecordsLoaded, err = meter.Int64Counter("listbind_records_loaded_total",
		metric.WithDescription("Records converted from the wire")); err != nil {
		return nil, err
	}
	if m.Degradations, err = meter.Int64Counter("listbind_expand_degradations_total",
		metric.WithDescription("Lookup expansions downgraded after a rejected query")); err != nil {
		return nil, err
	}
	if m.PartialsHydrated, err = meter.Int64Counter("listbind_partials_hydrated_total",
		metric.WithDescription("Partial lookup entities loaded in full")); err != nil {
		return nil, err
	}
	if m.Submits, err = meter.Int64Counter("listbind_submits_total",
		metric.WithDescription("Created or updated records")); err != nil {
		return nil, err
	}
	return &m, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics on the global meter provider.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.Meter(instrumentation))
		if err != nil {
			otel.Handle(err)
			m, _ = NewMetrics(noopMeter())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Call counts a remote call and its failure.
func (m *Metrics) Call(ctx context.Context, op, list string, err error) {
	attrs := metric.WithAttributes(
		attribute.String(AttrList, list),
		attribute.String(AttrOperation, op),
	)
	m.RemoteCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.RemoteErrors.Add(ctx, 1, attrs)
	}
}

// Add increments counter by n for list.
func (m *Metrics) Add(ctx context.Context, counter metric.Int64Counter, n int, list string, attrs ...attribute.KeyValue) {
	if n == 0 {
		return
	}
	attrs = append(attrs, attribute.String(AttrList, list))
	counter.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}
