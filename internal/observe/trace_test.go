package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer as the global provider for the
// duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLog redirects the default logger into a buffer.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func spanAttr(s tracetest.SpanStub, key string) string {
	for _, a := range s.Attributes {
		if string(a.Key) == key {
			return a.Value.Emit()
		}
	}
	return ""
}

func TestStartSpan_CaptureNestsUnderSession(t *testing.T) {
	exp := useTestTracer(t)

	ctx := WithSessionID(context.Background(), "sess-7")
	ctx, run := StartSpan(ctx, "practice.session")
	capCtx, capture := StartSpan(ctx, "practice.capture")
	capture.End()
	run.End()

	if CorrelationID(capCtx) != CorrelationID(ctx) {
		t.Error("capture span started a new trace")
	}
	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	for _, s := range spans {
		if got := spanAttr(s, "session.id"); got != "sess-7" {
			t.Errorf("%s session.id = %q", s.Name, got)
		}
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("capture span is not a child of the session span")
	}
}

func TestStartSpan_NoSessionAttributeWithoutSession(t *testing.T) {
	exp := useTestTracer(t)

	_, span := StartSpan(context.Background(), "sections.list")
	span.End()

	if got := spanAttr(exp.GetSpans()[0], "session.id"); got != "" {
		t.Errorf("session.id = %q, want unset", got)
	}
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q", got)
	}
	seen := map[string]bool{}
	for range 20 {
		ctx, span := StartSpan(context.Background(), "practice.session")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation ID %q is not a hex trace ID", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)
	spanCtx, span := StartSpan(context.Background(), "practice.capture")
	defer span.End()

	tests := []struct {
		name    string
		ctx     context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     context.Background(),
			notWant: []string{"trace_id", "session_id"},
		},
		{
			name:    "session only",
			ctx:     WithSessionID(context.Background(), "abc"),
			want:    []string{"session_id=abc"},
			notWant: []string{"trace_id"},
		},
		{
			name: "span and session",
			ctx:  WithSessionID(spanCtx, "abc"),
			want: []string{"trace_id=" + CorrelationID(spanCtx), "span_id=", "session_id=abc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			Logger(tt.ctx).Info("capture opened")
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("log %q missing %q", out, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("log %q contains %q", out, w)
				}
			}
		})
	}
}

func TestSessionID_RoundTrip(t *testing.T) {
	if got := SessionID(context.Background()); got != "" {
		t.Errorf("SessionID on bare context = %q", got)
	}
	if got := SessionID(WithSessionID(context.Background(), "s-1")); got != "s-1" {
		t.Errorf("SessionID = %q, want s-1", got)
	}
}
