package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kschrader/dex/internal/storage"
	"github.com/kschrader/dex/internal/types"
)

const storageScopeName = "github.com/kschrader/dex/internal/storage"

// InstrumentedEngine wraps a storage.Engine with OTel tracing and metrics.
// Every read and write gets a span and is counted in dex.storage.* metrics.
// Use WrapEngine to create one; it returns the original engine unchanged
// when telemetry is disabled.
type InstrumentedEngine struct {
	inner     storage.Engine
	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	taskGauge metric.Int64Gauge
}

// WrapEngine returns e decorated with OTel instrumentation.
// When telemetry is disabled, e is returned as-is with zero overhead.
func WrapEngine(e storage.Engine) storage.Engine {
	if !Enabled() {
		return e
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("dex.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("dex.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("dex.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	taskGauge, _ := m.Int64Gauge("dex.task.count",
		metric.WithDescription("Number of active tasks observed on the last read"),
	)
	return &InstrumentedEngine{
		inner:     e,
		tracer:    Tracer(storageScopeName),
		ops:       ops,
		dur:       dur,
		errs:      errs,
		taskGauge: taskGauge,
	}
}

func (e *InstrumentedEngine) op(ctx context.Context, name string) (context.Context, trace.Span, time.Time) {
	attrs := []attribute.KeyValue{attribute.String("db.operation", name)}
	ctx, span := e.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	e.ops.Add(ctx, 1, metric.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (e *InstrumentedEngine) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	e.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// Read implements storage.Engine.
func (e *InstrumentedEngine) Read(ctx context.Context) (types.TaskStore, error) {
	ctx, span, start := e.op(ctx, "read")
	store, err := e.inner.Read(ctx)
	e.done(ctx, span, start, err, attribute.String("db.operation", "read"))
	if err == nil {
		e.taskGauge.Record(ctx, int64(len(store)))
	}
	return store, err
}

// Write implements storage.Engine.
func (e *InstrumentedEngine) Write(ctx context.Context, store types.TaskStore) error {
	ctx, span, start := e.op(ctx, "write")
	err := e.inner.Write(ctx, store)
	e.done(ctx, span, start, err, attribute.String("db.operation", "write"))
	return err
}

// Identifier implements storage.Engine.
func (e *InstrumentedEngine) Identifier() string { return e.inner.Identifier() }
