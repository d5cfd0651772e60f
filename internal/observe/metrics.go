// Package observe provides application-wide observability primitives for
// hotmic: OpenTelemetry metrics, tracing helpers, trace-aware logging, and
// HTTP middleware for the ops server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [Init] so that metrics can be
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

// meterName is the instrumentation scope name used for all hotmic metrics.
const meterName = "github.com/MrWong99/hotmic"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// BatchDuration tracks batch transcription latency per provider.
	BatchDuration metric.Float64Histogram

	// StreamConnectDuration tracks how long opening a streaming session takes.
	StreamConnectDuration metric.Float64Histogram

	// --- Counters ---

	// Recordings counts finished recording sessions. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("outcome", ...)
	Recordings metric.Int64Counter

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Filtered counts results dropped before injection. Use with attribute:
	//   attribute.String("reason", ...)
	Filtered metric.Int64Counter

	// Injections counts text injections. Use with attribute:
	//   attribute.String("mode", ...)
	Injections metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of open streaming sessions.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning a
// websocket handshake up to a long asynchronous transcription job.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.BatchDuration, err = m.Float64Histogram("hotmic.batch.duration",
		metric.WithDescription("Latency of batch transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StreamConnectDuration, err = m.Float64Histogram("hotmic.stream.connect.duration",
		metric.WithDescription("Latency of opening a streaming session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Recordings, err = m.Int64Counter("hotmic.recordings",
		metric.WithDescription("Total recording sessions by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("hotmic.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Filtered, err = m.Int64Counter("hotmic.filtered",
		metric.WithDescription("Total results dropped before injection by reason."),
	); err != nil {
		return nil, err
	}
	if met.Injections, err = m.Int64Counter("hotmic.injections",
		metric.WithDescription("Total text injections by mode."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("hotmic.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("hotmic.active_streams",
		metric.WithDescription("Number of open streaming sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hotmic.http.request.duration",
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBatch records one batch transcription: its latency, the request
// counter and, when err is non-nil, the error counter.
func (m *Metrics) RecordBatch(ctx context.Context, provider string, d time.Duration, err error) {
	m.BatchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, "batch")
	}
	m.RecordProviderRequest(ctx, provider, "batch", status)
}

// RecordRecording counts a finished recording session.
func (m *Metrics) RecordRecording(ctx context.Context, mode, outcome string) {
	m.Recordings.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordFiltered counts a result dropped by a filter ("silence",
// "hallucination").
func (m *Metrics) RecordFiltered(ctx context.Context, reason string) {
	m.Filtered.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordInjection counts one injection.
func (m *Metrics) RecordInjection(ctx context.Context, mode string) {
	m.Injections.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
