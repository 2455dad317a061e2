package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider builds a minimal SDK tracer provider. No exporter is
// wired by default (spans are sampled but dropped) — a production
// deployment registers one via otel.SetTracerProvider before calling
// Tracer; this runtime only needs the span/context plumbing so the event
// pipeline can attach consistent turn/tool spans.
func NewTracerProvider() *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the runtime's named tracer.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/haasonsaas/orchestrator")
}

// StartTurnSpan starts a span representing one session turn.
func StartTurnSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session.turn", trace.WithAttributes())
}

// StartToolSpan starts a span representing one tool invocation.
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "tool.call."+toolName)
}
