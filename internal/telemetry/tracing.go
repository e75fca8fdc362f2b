package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an otel.Tracer with the handful of spans the cache needs:
// normalize, materialize, and canonical rebuild (spec SPEC_FULL §10.6).
// Without an externally configured TracerProvider, otel's default no-op
// provider makes every span a zero-cost stub.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer under serviceName, using whatever
// TracerProvider is currently registered with otel (global no-op unless
// the host process installs one).
func NewTracer(serviceName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(serviceName)}
}

// StartNormalize starts a span around one Normalize call.
func (t *Tracer) StartNormalize(ctx context.Context, rootTypename string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cachebay.normalize", trace.WithAttributes(
		attribute.String("cachebay.root_typename", rootTypename),
	))
}

// StartMaterialize starts a span around one MaterializeDocument call.
func (t *Tracer) StartMaterialize(ctx context.Context, rootTypename string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cachebay.materialize", trace.WithAttributes(
		attribute.String("cachebay.root_typename", rootTypename),
	))
}

// StartCanonicalRebuild starts a span around one canonical connection
// rebuild.
func (t *Tracer) StartCanonicalRebuild(ctx context.Context, canonicalKey string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cachebay.canonical_rebuild", trace.WithAttributes(
		attribute.String("cachebay.canonical_key", canonicalKey),
	))
}
