package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans and records errors and events on the span in ctx.
type Tracer interface {
	// StartSpan starts a span and returns the derived context with a function that ends it.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func())
	// RecordError records err on the current span and marks it failed.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds a named event to the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

// NoOpTracer does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return NoOpTracer{}
}

func (NoOpTracer) StartSpan(ctx context.Context, _ string, _ map[string]interface{}) (context.Context, func()) {
	return ctx, func() {}
}
func (NoOpTracer) RecordError(context.Context, string, error)                   {}
func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var _ Tracer = NoOpTracer{}

// OpenTelemetryTracer is an implementation of Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer named after the instrumentation scope from provider.
func NewOpenTelemetryTracer(provider trace.TracerProvider) Tracer {
	return &OpenTelemetryTracer{tracer: provider.Tracer("github.com/tigerroll/bikeshare")}
}

// StartSpan starts a new span.
func (t *OpenTelemetryTracer) StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attributes)...))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

var _ Tracer = (*OpenTelemetryTracer)(nil)

func toAttributes(attributes map[string]interface{}) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			kvs = append(kvs, attribute.String(k, val))
		case int:
			kvs = append(kvs, attribute.Int(k, val))
		case int64:
			kvs = append(kvs, attribute.Int64(k, val))
		case float64:
			kvs = append(kvs, attribute.Float64(k, val))
		case bool:
			kvs = append(kvs, attribute.Bool(k, val))
		case []string:
			kvs = append(kvs, attribute.StringSlice(k, val))
		case []int:
			kvs = append(kvs, attribute.IntSlice(k, val))
		case fmt.Stringer:
			kvs = append(kvs, attribute.String(k, val.String()))
		default:
			kvs = append(kvs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return kvs
}
