// Package observe provides application-wide observability primitives for
// parrot: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all parrot metrics.
const meterName = "github.com/parrotlabs/parrot"

// Metrics holds all OpenTelemetry metric instruments for the simulator.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ResponseDuration tracks end-to-end response generation latency from
	// response.created to response.done. Use with attributes:
	//   attribute.String("template", ...), attribute.String("status", ...)
	ResponseDuration metric.Float64Histogram

	// Responses counts generated responses. Use with attribute:
	//   attribute.String("status", ...)
	Responses metric.Int64Counter

	// TemplateSelections counts selection outcomes per winning template key.
	// The fallback appears under its own key.
	TemplateSelections metric.Int64Counter

	// EventsSent counts outbound wire events by type.
	EventsSent metric.Int64Counter

	// ActiveSessions tracks the number of live simulated sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// paced streaming responses, which routinely take several seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResponseDuration, err = m.Float64Histogram("parrot.response.duration",
		metric.WithDescription("Latency of response generation from created to done."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Responses, err = m.Int64Counter("parrot.responses",
		metric.WithDescription("Total generated responses by terminal status."),
	); err != nil {
		return nil, err
	}
	if met.TemplateSelections, err = m.Int64Counter("parrot.template.selections",
		metric.WithDescription("Total template selections by winning template key."),
	); err != nil {
		return nil, err
	}
	if met.EventsSent, err = m.Int64Counter("parrot.events.sent",
		metric.WithDescription("Total outbound wire events by event type."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parrot.active_sessions",
		metric.WithDescription("Number of live simulated sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("parrot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordResponse records one completed response generation: its latency
// histogram sample and the per-status counter increment.
func (m *Metrics) RecordResponse(ctx context.Context, template, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("status", status),
	)
	m.ResponseDuration.Record(ctx, d.Seconds(), attrs)
	m.Responses.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSelection records a template selection counter increment.
func (m *Metrics) RecordSelection(ctx context.Context, template string) {
	m.TemplateSelections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("template", template)),
	)
}

// RecordEventSent records an outbound wire event counter increment.
func (m *Metrics) RecordEventSent(ctx context.Context, eventType string) {
	m.EventsSent.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}
