// Package observe provides application-wide observability primitives for
// rehearsal: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all rehearsal metrics.
const meterName = "github.com/MrWong99/rehearsal"

// Frame results recorded by [Metrics.RecordFrame].
const (
	FrameAccepted = "accepted"
	FrameNoResult = "no_result"
	FrameDropped  = "dropped"
	FrameLate     = "late"
	FrameError    = "error"
)

// Transcript kinds recorded by [Metrics.RecordTranscript].
const (
	TranscriptPartial = "partial"
	TranscriptFinal   = "final"
	TranscriptError   = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Capture histograms ---

	// CaptureDuration tracks how long capture windows stayed open.
	CaptureDuration metric.Float64Histogram

	// CaptureConfidence tracks the confidence percentage of each capture.
	CaptureConfidence metric.Float64Histogram

	// CaptureSpeechPoints tracks speech points (0, 5, 10) of each capture.
	CaptureSpeechPoints metric.Int64Histogram

	// ClassifierDuration tracks per-frame classifier latency.
	ClassifierDuration metric.Float64Histogram

	// --- Counters ---

	// Frames counts camera frames by result. Use with attribute:
	//   attribute.String("result", ...)
	Frames metric.Int64Counter

	// Transcripts counts transcriber events by kind. Use with attribute:
	//   attribute.String("kind", ...)
	Transcripts metric.Int64Counter

	// ScenesSkipped counts malformed scenes. Use with attribute:
	//   attribute.String("reason", ...)
	ScenesSkipped metric.Int64Counter

	// CapturesCompleted counts scored captures. Use with attributes:
	//   attribute.String("scene_type", ...), attribute.String("outcome", ...)
	CapturesCompleted metric.Int64Counter

	// SectionsCompleted counts sections that reached a final score.
	SectionsCompleted metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveCaptures tracks the number of open capture windows.
	ActiveCaptures metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Histogram buckets come from [PracticeView], so mp
// should be built with [NewMeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureDuration, err = m.Float64Histogram("rehearsal.capture.duration",
		metric.WithDescription("Time capture windows stayed open."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.CaptureConfidence, err = m.Float64Histogram("rehearsal.capture.confidence",
		metric.WithDescription("Confidence percentage per capture."),
		metric.WithUnit("%"),
	); err != nil {
		return nil, err
	}
	if met.CaptureSpeechPoints, err = m.Int64Histogram("rehearsal.capture.speech_points",
		metric.WithDescription("Speech points per capture."),
	); err != nil {
		return nil, err
	}
	if met.ClassifierDuration, err = m.Float64Histogram("rehearsal.classifier.duration",
		metric.WithDescription("Latency of per-frame classification."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.Frames, err = m.Int64Counter("rehearsal.frames",
		metric.WithDescription("Camera frames by result."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("rehearsal.transcripts",
		metric.WithDescription("Transcriber events by kind."),
	); err != nil {
		return nil, err
	}
	if met.ScenesSkipped, err = m.Int64Counter("rehearsal.scenes.skipped",
		metric.WithDescription("Malformed scenes skipped by reason."),
	); err != nil {
		return nil, err
	}
	if met.CapturesCompleted, err = m.Int64Counter("rehearsal.captures.completed",
		metric.WithDescription("Scored captures by scene type and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SectionsCompleted, err = m.Int64Counter("rehearsal.sections.completed",
		metric.WithDescription("Sections that reached a final score."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("rehearsal.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("rehearsal.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("rehearsal.active_sessions",
		metric.WithDescription("Number of live practice sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("rehearsal.active_captures",
		metric.WithDescription("Number of open capture windows."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("rehearsal.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFrame counts one camera frame with the given Frame* result.
func (m *Metrics) RecordFrame(ctx context.Context, result string) {
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordTranscript counts one transcriber event with the given Transcript*
// kind.
func (m *Metrics) RecordTranscript(ctx context.Context, kind string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSceneSkipped counts one malformed scene.
func (m *Metrics) RecordSceneSkipped(ctx context.Context, reason string) {
	m.ScenesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCapture records a scored capture.
func (m *Metrics) RecordCapture(ctx context.Context, sceneType, outcome string, open time.Duration, confidencePct float64, speechPoints int) {
	attrs := metric.WithAttributes(
		attribute.String("scene_type", sceneType),
		attribute.String("outcome", outcome),
	)
	m.CapturesCompleted.Add(ctx, 1, attrs)
	m.CaptureDuration.Record(ctx, open.Seconds(), metric.WithAttributes(attribute.String("scene_type", sceneType)))
	m.CaptureConfidence.Record(ctx, confidencePct)
	m.CaptureSpeechPoints.Record(ctx, int64(speechPoints))
}

// RecordSectionCompleted counts one finished section.
func (m *Metrics) RecordSectionCompleted(ctx context.Context) {
	m.SectionsCompleted.Add(ctx, 1)
}
