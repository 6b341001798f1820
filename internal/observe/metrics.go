// Package observe provides application-wide observability primitives for
// textfix: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all textfix metrics.
const meterName = "github.com/MrWong99/textfix"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// CorrectorDuration tracks the latency of corrector calls (LLM round trip
	// including retries). Attributes: mode, status.
	CorrectorDuration metric.Float64Histogram

	// DiffDuration tracks the time spent diffing, reducing and validating a
	// rewrite.
	DiffDuration metric.Float64Histogram

	// --- Counters ---

	// CorrectionRequests counts service requests. Attributes: mode, status.
	CorrectionRequests metric.Int64Counter

	// OpsEmitted counts ReplaceOps returned to clients.
	OpsEmitted metric.Int64Counter

	// GuardViolations counts corrected texts rejected because they altered a
	// protected marker.
	GuardViolations metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// breaker, to.
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveLiveSessions tracks open live-check WebSocket connections.
	ActiveLiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for model
// round trips, which range from a few hundred milliseconds to tens of
// seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// diffBuckets covers the pure CPU path.
var diffBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CorrectorDuration, err = m.Float64Histogram("textfix.corrector.duration",
		metric.WithDescription("Latency of corrector calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DiffDuration, err = m.Float64Histogram("textfix.diff.duration",
		metric.WithDescription("Latency of diffing, reducing and validating a rewrite."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(diffBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CorrectionRequests, err = m.Int64Counter("textfix.correction.requests",
		metric.WithDescription("Total correction requests by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.OpsEmitted, err = m.Int64Counter("textfix.ops.emitted",
		metric.WithDescription("Total replace operations returned to clients."),
	); err != nil {
		return nil, err
	}
	if met.GuardViolations, err = m.Int64Counter("textfix.guard.violations",
		metric.WithDescription("Total corrections rejected for touching a protected marker."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("textfix.tool.calls",
		metric.WithDescription("Total MCP tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("textfix.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveLiveSessions, err = m.Int64UpDownCounter("textfix.live.sessions",
		metric.WithDescription("Number of open live-check WebSocket connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("textfix.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCorrection records one finished service request: its corrector
// latency, outcome and the number of ops it produced.
func (m *Metrics) RecordCorrection(ctx context.Context, mode, status string, correctorSeconds float64, ops int) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.CorrectionRequests.Add(ctx, 1, attrs)
	if correctorSeconds > 0 {
		m.CorrectorDuration.Record(ctx, correctorSeconds, attrs)
	}
	if ops > 0 {
		m.OpsEmitted.Add(ctx, int64(ops), metric.WithAttributes(attribute.String("mode", mode)))
	}
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTransition records a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}
