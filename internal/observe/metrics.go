// Package observe provides application-wide observability primitives for
// Heartmirror: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Heartmirror metrics.
const meterName = "heartmirror"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognitionDuration tracks speech recognition latency per utterance.
	RecognitionDuration metric.Float64Histogram

	// ClassificationDuration tracks sentiment classification latency.
	ClassificationDuration metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts inbound audio frames that decoded successfully.
	FramesProcessed metric.Int64Counter

	// DecodeErrors counts audio frames dropped due to decode failures.
	DecodeErrors metric.Int64Counter

	// UtterancesEmitted counts utterances that passed segmentation and were
	// handed to recognition.
	UtterancesEmitted metric.Int64Counter

	// UtterancesSuppressed counts utterances dropped after recognition.
	// Use with attribute: attribute.String("reason", ...)
	UtterancesSuppressed metric.Int64Counter

	// ResponsesSent counts reaction responses delivered to devices.
	// Use with attribute: attribute.String("emotion", ...)
	ResponsesSent metric.Int64Counter

	// HistoryWriteErrors counts failed best-effort history writes.
	HistoryWriteErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks the number of live device connections.
	ActiveConnections metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognitionDuration, err = m.Float64Histogram("heartmirror.recognition.duration",
		metric.WithDescription("Latency of speech recognition per utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassificationDuration, err = m.Float64Histogram("heartmirror.classification.duration",
		metric.WithDescription("Latency of sentiment classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("heartmirror.frames.processed",
		metric.WithDescription("Total successfully decoded audio frames."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("heartmirror.frames.decode_errors",
		metric.WithDescription("Total audio frames dropped due to decode failures."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesEmitted, err = m.Int64Counter("heartmirror.utterances.emitted",
		metric.WithDescription("Total utterances handed to recognition."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesSuppressed, err = m.Int64Counter("heartmirror.utterances.suppressed",
		metric.WithDescription("Total utterances suppressed after recognition, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ResponsesSent, err = m.Int64Counter("heartmirror.responses.sent",
		metric.WithDescription("Total reaction responses delivered, by emotion."),
	); err != nil {
		return nil, err
	}
	if met.HistoryWriteErrors, err = m.Int64Counter("heartmirror.history.write_errors",
		metric.WithDescription("Total failed best-effort history writes."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConnections, err = m.Int64UpDownCounter("heartmirror.active_connections",
		metric.WithDescription("Number of live device connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("heartmirror.http.request.duration",
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

// RecordSuppressed is a convenience method that records a suppressed
// utterance with its reason ("empty", "denylist", "recognition_error").
func (m *Metrics) RecordSuppressed(ctx context.Context, reason string) {
	m.UtterancesSuppressed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordResponse is a convenience method that records a delivered reaction
// response with its emotion label.
func (m *Metrics) RecordResponse(ctx context.Context, emotion string) {
	m.ResponsesSent.Add(ctx, 1,
		metric.WithAttributes(attribute.String("emotion", emotion)),
	)
}
