// Package observe provides the observability primitives of teleprompt:
// OpenTelemetry metrics, tracing, trace-aware logging, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. Tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all teleprompt metrics.
const meterName = "github.com/MrWong99/teleprompt"

// Outcome values recorded on [Metrics.AlignUpdates].
const (
	OutcomeAdvanced  = "advanced"
	OutcomeUnchanged = "unchanged"
	OutcomeStale     = "stale"
	OutcomeIgnored   = "ignored"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// AlignUpdates counts transcript updates by attribute "outcome".
	AlignUpdates metric.Int64Counter

	// AlignDuration tracks the time spent aligning one update.
	AlignDuration metric.Float64Histogram

	// AlignWinner counts which strategy produced the reported offset, by
	// attribute "strategy".
	AlignWinner metric.Int64Counter

	// RecognitionRetries counts recognition passes reopened after a failure.
	RecognitionRetries metric.Int64Counter

	// RecognitionFailures counts sessions that gave up after exhausting
	// their retries.
	RecognitionFailures metric.Int64Counter

	// STTStartDuration tracks how long opening a recognition pass takes.
	STTStartDuration metric.Float64Histogram

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of following sessions with a loaded
	// script.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// alignBuckets are histogram boundaries (in seconds) for in-process alignment,
// which normally completes in well under a millisecond.
var alignBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05,
}

// latencyBuckets are histogram boundaries (in seconds) for network-bound
// operations.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AlignUpdates, err = m.Int64Counter("teleprompt.align.updates",
		metric.WithDescription("Transcript updates by outcome."),
	); err != nil {
		return nil, err
	}
	if met.AlignDuration, err = m.Float64Histogram("teleprompt.align.duration",
		metric.WithDescription("Latency of aligning one transcript update."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(alignBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignWinner, err = m.Int64Counter("teleprompt.align.winner",
		metric.WithDescription("Alignment strategy that produced the reported offset."),
	); err != nil {
		return nil, err
	}

	if met.RecognitionRetries, err = m.Int64Counter("teleprompt.recognition.retries",
		metric.WithDescription("Recognition passes reopened after a failure."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionFailures, err = m.Int64Counter("teleprompt.recognition.failures",
		metric.WithDescription("Sessions whose recognition became unavailable."),
	); err != nil {
		return nil, err
	}
	if met.STTStartDuration, err = m.Float64Histogram("teleprompt.stt.start.duration",
		metric.WithDescription("Latency of opening a recognition pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("teleprompt.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("teleprompt.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("teleprompt.sessions.active",
		metric.WithDescription("Number of following sessions with a loaded script."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("teleprompt.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAlignment records one processed transcript update: its outcome, its
// duration, and, when the offset moved, the winning strategy.
func (m *Metrics) RecordAlignment(ctx context.Context, outcome, winner string, d time.Duration) {
	m.AlignUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.AlignDuration.Record(ctx, d.Seconds())
	if outcome == OutcomeAdvanced && winner != "" {
		m.AlignWinner.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", winner)))
	}
}

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
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
