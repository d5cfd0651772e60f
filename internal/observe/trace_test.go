package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// useTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestStartSpan_CorrelationID(t *testing.T) {
	exp := useTestTracer(t)

	ctx, span := StartSpan(context.Background(), "test-op")
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 {
		t.Errorf("correlation ID %q, want 32 hex chars", cid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "test-op" {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestProviderSpan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantEvents int
	}{
		{name: "success", wantStatus: codes.Unset},
		{name: "failure", err: errors.New("deepgram: 401"), wantStatus: codes.Error, wantEvents: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exp := useTestTracer(t)

			_, span := StartProviderSpan(context.Background(), "stt.batch", "deepgram")
			EndSpan(span, tc.err)

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			s := spans[0]
			if s.Name != "stt.batch" || s.SpanKind != trace.SpanKindClient {
				t.Errorf("span = %q kind %v", s.Name, s.SpanKind)
			}
			if s.Status.Code != tc.wantStatus {
				t.Errorf("status = %v, want %v", s.Status.Code, tc.wantStatus)
			}
			if len(s.Events) != tc.wantEvents {
				t.Errorf("events = %d, want %d", len(s.Events), tc.wantEvents)
			}
			found := false
			for _, a := range s.Attributes {
				if a.Key == "provider" && a.Value.AsString() == "deepgram" {
					found = true
				}
			}
			if !found {
				t.Error("span missing provider attribute")
			}
		})
	}
}

func TestLogger(t *testing.T) {
	useTestTracer(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	Logger(context.Background()).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span has trace_id: %s", buf.String())
	}
	buf.Reset()

	ctx, span := StartSpan(context.Background(), "log-test")
	defer span.End()
	Logger(ctx).Info("with span")
	if !strings.Contains(buf.String(), "trace_id=") || !strings.Contains(buf.String(), "span_id=") {
		t.Errorf("log output missing trace fields: %s", buf.String())
	}
}
