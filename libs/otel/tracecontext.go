package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context in the form it is stored next to a
// row that is processed later, such as an outbox event.
type TraceContext struct {
	Parent string
	State  string
}

// Capture reads the active span's context through the global propagator.
func Capture(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

// Attach restores a stored trace context as the remote parent of ctx.
func (t TraceContext) Attach(ctx context.Context) context.Context {
	if t.Parent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": t.Parent}
	if t.State != "" {
		carrier["tracestate"] = t.State
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
