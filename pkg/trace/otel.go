package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewTracerProvider builds an in-process otel tracer provider for the
// engine. Unlike the teacher's internal/infrastructure/tracing.go (which
// ships spans to an OTLP collector over HTTP), this engine has no
// collector dependency in its domain stack, so the provider is built with
// only a resource and a sampler: no span processor or exporter is
// registered, and ended spans are not exported anywhere. What C11's trace
// payload serves to callers is the request's own ExecutionTrace, which is
// filled in separately through RecordNode.
func NewTracerProvider(serviceName string, sampleRatio float64) *sdktrace.TracerProvider {
	if sampleRatio <= 0 {
		sampleRatio = 0
	}
	if sampleRatio > 1 {
		sampleRatio = 1
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
}

// StartSpan starts a span for a single operator or stage and returns the
// function to end it, mirroring the boundaries the ExecutionTrace already
// records (spec §4.11's trace and the otel span track the same events from
// two angles: one for external tooling, one for the engine's own response
// payload).
func StartSpan(ctx context.Context, tracerName, spanName string) (context.Context, func()) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, spanName)
	return ctx, func() { span.End() }
}
