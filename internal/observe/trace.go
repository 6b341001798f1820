package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the textfix tracer.
const tracerName = "github.com/MrWong99/textfix"

// Span names of the correction facade.
const (
	SpanCheck = "correction.check"
	SpanApply = "correction.apply"
)

// Tracer returns the textfix [trace.Tracer] from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// FinishSpan stamps the outcome of a correction onto span. status is an
// error code as returned by correction.ErrorCode. Rejected requests are the
// caller's fault and leave the span status unset; any other failure marks
// the span as errored and records err.
func FinishSpan(span trace.Span, status string, ops int, err error) {
	span.SetAttributes(attribute.String("status", status), attribute.Int("ops", ops))
	if err == nil || status == "ok" || status == "invalid_request" {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// Clients quote it from the X-Correlation-ID header when reporting problems.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] with trace_id and span_id of the
// span in ctx, so a failed correction can be found from its correlation id.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
