package tracing_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/runner"
	"github.com/torosent/vuload/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{}, "")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want false when tracing disabled")
	}

	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("disabled provider produced a recording span")
	}
}

func TestInitWithEndpoint(t *testing.T) {
	off := false
	tests := []struct {
		name          string
		cfg           config.TracingConfig
		wantPropagate bool
		wantErr       bool
	}{
		{"grpc", config.TracingConfig{Endpoint: "localhost:4317", Protocol: "grpc", SampleRate: 1, Insecure: true}, true, false},
		{"default protocol", config.TracingConfig{Endpoint: "localhost:4317", Insecure: true}, true, false},
		{"http", config.TracingConfig{Endpoint: "localhost:4318", Protocol: "HTTP", Insecure: true}, true, false},
		{"propagation off", config.TracingConfig{Endpoint: "localhost:4317", Insecure: true, Propagate: &off}, false, false},
		{"unsupported protocol", config.TracingConfig{Endpoint: "localhost:4317", Protocol: "thrift"}, false, true},
		{"negative sample rate", config.TracingConfig{Endpoint: "localhost:4317", SampleRate: -0.5}, false, true},
		{"sample rate above one", config.TracingConfig{Endpoint: "localhost:4317", SampleRate: 1.5}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tracing.Init(context.Background(), tt.cfg, "01HRUNTEST")
			if tt.wantErr {
				if err == nil {
					t.Fatal("Init() error = nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
			if got := p.ShouldPropagate(); got != tt.wantPropagate {
				t.Errorf("ShouldPropagate() = %v, want %v", got, tt.wantPropagate)
			}
		})
	}
}

func TestInitEndpointFromEnvironment(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	p, err := tracing.Init(context.Background(), config.TracingConfig{Insecure: true, SampleRate: 1}, "01HRUNTEST")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer().Start(context.Background(), "http iteration")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span when the endpoint comes from the environment")
	}
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	if p.ShouldPropagate() {
		t.Error("nil provider ShouldPropagate() = true, want false")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown() error = %v", err)
	}
	// Tracer() on nil should return no-op, not panic
	tracer := p.Tracer()
	_, span := tracer.Start(context.Background(), "test")
	span.End()
}

func attrValue(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.Emit(), true
		}
	}
	return "", false
}

func TestStartIterationSpan(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	tests := []struct {
		name     string
		protocol string
		target   string
		wantName string
	}{
		{"http with target", "http", "http://localhost/weatherforecast", "http iteration"},
		{"websocket without target", "websocket", "", "websocket iteration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := tracing.StartIterationSpan(context.Background(), tracer, tt.protocol, tt.target)
			span.End()

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Name != tt.wantName {
				t.Errorf("span name = %q, want %q", spans[0].Name, tt.wantName)
			}
			if spans[0].SpanKind != trace.SpanKindClient {
				t.Errorf("span kind = %v, want client", spans[0].SpanKind)
			}
			if got, _ := attrValue(spans[0], "vuload.protocol"); got != tt.protocol {
				t.Errorf("vuload.protocol = %q, want %q", got, tt.protocol)
			}
			got, ok := attrValue(spans[0], "vuload.target")
			if tt.target == "" && ok {
				t.Errorf("vuload.target set to %q for empty target", got)
			}
			if tt.target != "" && got != tt.target {
				t.Errorf("vuload.target = %q, want %q", got, tt.target)
			}
		})
	}
}

func TestEndSpanStatus(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	tests := []struct {
		name       string
		outcome    runner.Outcome
		wantCode   codes.Code
		wantDesc   string
		wantEvents int
	}{
		{"success", runner.Succeeded(), codes.Ok, "", 0},
		{"failure", runner.Failed("HTTP 503"), codes.Error, "HTTP 503", 0},
		{"error", runner.Faulted(context.DeadlineExceeded), codes.Error, context.DeadlineExceeded.Error(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := tracer.Start(context.Background(), "iteration")
			tracing.EndSpan(span, tt.outcome)

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Status.Code != tt.wantCode {
				t.Errorf("status code = %v, want %v", spans[0].Status.Code, tt.wantCode)
			}
			if spans[0].Status.Description != tt.wantDesc {
				t.Errorf("status description = %q, want %q", spans[0].Status.Description, tt.wantDesc)
			}
			if len(spans[0].Events) != tt.wantEvents {
				t.Errorf("got %d events, want %d", len(spans[0].Events), tt.wantEvents)
			}
			if got, _ := attrValue(spans[0], "vuload.status"); got != tt.outcome.Status.String() {
				t.Errorf("vuload.status = %q, want %q", got, tt.outcome.Status.String())
			}
		})
	}
}

type closeRecorder struct {
	runner.WorkloadFunc
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestMiddlewareSpanPerIteration(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	var traceparents []string
	inner := &closeRecorder{WorkloadFunc: func(ctx context.Context) runner.Outcome {
		headers := make(http.Header)
		tracing.InjectHTTPHeaders(ctx, headers)
		traceparents = append(traceparents, headers.Get("Traceparent"))
		if seq, _ := runner.IterationFromContext(ctx); seq == 1 {
			return runner.Failed("HTTP 500")
		}
		return runner.Succeeded()
	}}

	factory := runner.Wrap(func(ctx context.Context, vu int) (runner.Workload, error) {
		return inner, nil
	}, tracing.Middleware(tracer, "http", "http://localhost/weatherforecast"))

	sched := runner.New(runner.Options{
		VirtualUsers: 1,
		Duration:     50 * time.Millisecond,
		SleepBetween: 5 * time.Millisecond,
		Factory:      factory,
	})
	summary, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !inner.closed {
		t.Error("Close was not forwarded through the tracing middleware")
	}

	spans := exporter.GetSpans()
	if int64(len(spans)) != summary.Total {
		t.Fatalf("got %d spans for %d iterations", len(spans), summary.Total)
	}
	if summary.Total < 2 {
		t.Fatalf("expected at least 2 iterations, got %d", summary.Total)
	}
	for i, span := range spans {
		if got, _ := attrValue(span, "vuload.vu"); got != "1" {
			t.Errorf("span %d vuload.vu = %q, want 1", i, got)
		}
		if !strings.Contains(traceparents[i], span.SpanContext.TraceID().String()) {
			t.Errorf("span %d traceparent %q does not carry trace id %s", i, traceparents[i], span.SpanContext.TraceID())
		}
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("second iteration span status = %v, want Error", spans[1].Status.Code)
	}
	if summary.Failures != 1 || summary.Total != summary.Successes+summary.Failures {
		t.Errorf("summary = %+v", summary)
	}
}

func TestInjectHTTPHeaders(t *testing.T) {
	_, tracer := setupTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "test-inject")
	defer span.End()

	headers := make(http.Header)
	tracing.InjectHTTPHeaders(ctx, headers)

	got := headers.Get("Traceparent")
	if got == "" {
		t.Error("traceparent header not injected")
	}
	// traceparent format: version-traceid-spanid-flags (e.g., 00-abc123...-def456...-01)
	if len(got) < 55 {
		t.Errorf("traceparent header too short: %q", got)
	}
}

func TestInjectHTTPHeadersNoSpan(t *testing.T) {
	// Without a span in context, injection should not panic and not set traceparent
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
	))
	headers := make(http.Header)
	tracing.InjectHTTPHeaders(context.Background(), headers)

	got := headers.Get("Traceparent")
	if got != "" {
		t.Errorf("traceparent header should be empty without span, got %q", got)
	}
}
