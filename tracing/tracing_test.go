package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/wyfcoding/optiongreeks/config"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSpanHelpers(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	}()

	ctx, span := StartSpan(context.Background(), "Service.Greeks", ContractKey.String("SPY240621C00500000"), UnderlyingKey.String("SPY"))
	SetError(ctx, errors.New("iv did not converge"))
	if GetTraceID(ctx) == "" {
		t.Error("trace id is empty inside a recording span")
	}
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if len(spans[0].Attributes) != 2 {
		t.Errorf("attributes = %v", spans[0].Attributes)
	}
	if len(spans[0].Events) != 1 {
		t.Errorf("events = %v, want one error event", spans[0].Events)
	}
	if spans[0].SpanKind != trace.SpanKindInternal {
		t.Errorf("kind = %v", spans[0].SpanKind)
	}
	if GetTraceID(context.Background()) != "" {
		t.Error("trace id outside span should be empty")
	}
}

func TestInjectExtractRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	carrier := propagation.MapCarrier{}
	Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatalf("traceparent not injected: %v", carrier)
	}
	got := Extract(context.Background(), carrier)
	if GetTraceID(got) != GetTraceID(ctx) {
		t.Errorf("trace id = %q, want %q", GetTraceID(got), GetTraceID(ctx))
	}
}
