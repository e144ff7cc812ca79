package tracing

import (
	"context"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/runner"
)

// StartIterationSpan starts a client span for one workload iteration. The VU
// and iteration number are read from ctx when present.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, protocol, target string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, protocol+" iteration",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	attrs := []attribute.KeyValue{attribute.String("vuload.protocol", protocol)}
	if target != "" {
		attrs = append(attrs, attribute.String("vuload.target", target))
	}
	if vu, ok := runner.VUFromContext(ctx); ok {
		attrs = append(attrs, attribute.Int("vuload.vu", vu))
	}
	if seq, ok := runner.IterationFromContext(ctx); ok {
		attrs = append(attrs, attribute.Int64("vuload.iteration", seq))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// EndSpan finishes a span with the outcome of the iteration.
func EndSpan(span trace.Span, out runner.Outcome) {
	span.SetAttributes(attribute.String("vuload.status", out.Status.String()))
	switch {
	case out.Status == metrics.StatusSuccess && out.Err == nil:
		span.SetStatus(codes.Ok, "")
	case out.Err != nil:
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, errorDescription(out))
	default:
		span.SetStatus(codes.Error, errorDescription(out))
	}
	span.End()
}

func errorDescription(out runner.Outcome) string {
	if out.Detail != "" {
		return out.Detail
	}
	if out.Err != nil {
		return out.Err.Error()
	}
	return out.Status.String()
}

// Middleware wraps each workload so that every iteration runs inside its own
// span. The span context is visible to the workload, which lets header
// injection link outgoing requests to it.
func Middleware(tracer trace.Tracer, protocol, target string) runner.Middleware {
	return func(w runner.Workload) runner.Workload {
		return &tracedWorkload{inner: w, tracer: tracer, protocol: protocol, target: target}
	}
}

type tracedWorkload struct {
	inner    runner.Workload
	tracer   trace.Tracer
	protocol string
	target   string
}

func (t *tracedWorkload) Invoke(ctx context.Context) runner.Outcome {
	ctx, span := StartIterationSpan(ctx, t.tracer, t.protocol, t.target)
	out := t.inner.Invoke(ctx)
	EndSpan(span, out)
	return out
}

func (t *tracedWorkload) Close() error {
	if c, ok := t.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
