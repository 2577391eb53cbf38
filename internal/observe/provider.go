package observe

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the process-wide telemetry pipeline.
type ProviderConfig struct {
	// ServiceName is reported as service.name. Default: "rehearsal".
	ServiceName string

	ServiceVersion string

	// TraceSampleRatio is the fraction of new root traces recorded. Zero or
	// anything outside (0, 1) records all of them. Requests that arrive with
	// a sampled parent are recorded regardless.
	TraceSampleRatio float64

	// Registerer receives the Prometheus collector. Default:
	// prometheus.DefaultRegisterer, which promhttp.Handler serves.
	Registerer prometheus.Registerer

	// TraceExporter ships finished spans. Nil keeps spans in-process only.
	TraceExporter sdktrace.SpanExporter
}

// histogramBounds are the bucket boundaries of every practice histogram.
// Capture windows run for seconds, confidence is a percentage and speech
// points only take three values.
var histogramBounds = map[string][]float64{
	"rehearsal.capture.duration":      {1, 2, 5, 10, 15, 20, 30, 60},
	"rehearsal.capture.confidence":    {10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	"rehearsal.capture.speech_points": {0, 5, 10},
	"rehearsal.classifier.duration":   {0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	"rehearsal.http.request.duration": {0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}

// sessionAttrKey is kept out of metrics; one label value per session would
// grow series without bound. Spans and logs still carry it.
const sessionAttrKey = attribute.Key("session.id")

// PracticeView shapes the rehearsal instruments: fixed bucket boundaries
// for the histograms and no per-session attributes on any stream.
// Instruments from other scopes keep the SDK defaults.
func PracticeView(inst sdkmetric.Instrument) (sdkmetric.Stream, bool) {
	if !strings.HasPrefix(inst.Name, "rehearsal.") {
		return sdkmetric.Stream{}, false
	}
	s := sdkmetric.Stream{
		Name:        inst.Name,
		Description: inst.Description,
		Unit:        inst.Unit,
		AttributeFilter: func(kv attribute.KeyValue) bool {
			return kv.Key != sessionAttrKey
		},
	}
	if b, ok := histogramBounds[inst.Name]; ok {
		s.Aggregation = sdkmetric.AggregationExplicitBucketHistogram{Boundaries: b}
	}
	return s, true
}

// NewMeterProvider returns a meter provider with [PracticeView] installed
// and the given readers attached.
func NewMeterProvider(res *resource.Resource, readers ...sdkmetric.Reader) *sdkmetric.MeterProvider {
	opts := []sdkmetric.Option{sdkmetric.WithView(PracticeView)}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	return sdkmetric.NewMeterProvider(opts...)
}

// Sampler returns the trace sampler for ratio. Child spans follow their
// parent so a capture span is never recorded without its session.
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// InitProvider installs the global meter and tracer providers and the W3C
// propagator. Metrics are exposed through a Prometheus collector on
// cfg.Registerer.
//
// It must run before the first [DefaultMetrics] call, otherwise the
// instruments bind to the no-op provider. The returned function flushes and
// closes both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rehearsal"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	exp, err := promexporter.New(promexporter.WithRegisterer(cfg.Registerer))
	if err != nil {
		return nil, err
	}
	mp := NewMeterProvider(res, exp)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.TraceSampleRatio)),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
