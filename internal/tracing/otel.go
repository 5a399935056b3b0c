package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	providerOnce sync.Once
	providerMu   sync.RWMutex
	provider     *sdktrace.TracerProvider
	providerErr  error
)

// InitOpenTelemetry installs a process-wide tracer provider sampling the
// given ratio of root spans. Only the first call has an effect.
func InitOpenTelemetry(serviceName string, sampleRatio float64) error {
	providerOnce.Do(func() {
		res, err := resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
			),
		)
		if err != nil {
			providerErr = err
			return
		}

		if sampleRatio <= 0 || sampleRatio > 1 {
			sampleRatio = 1
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
			sdktrace.WithResource(res),
		)

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})

	return providerErr
}

// ShutdownOpenTelemetry flushes and shuts down the global tracer provider.
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span tagged with the run, query and attempt carried by
// ctx, and records the span's trace id in ctx when none is set yet.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName,
		trace.WithAttributes(append(contextAttributes(ctx), attrs...)...),
	)

	if GetTraceID(ctx) == "" {
		sc := span.SpanContext()
		if sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}

// contextAttributes converts the correlation ids in ctx to span attributes.
func contextAttributes(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if id := GetRunID(ctx); id != "" {
		attrs = append(attrs, attribute.String("run.id", id))
	}
	if id := GetQueryID(ctx); id != "" {
		attrs = append(attrs, attribute.String("query.id", id))
	}
	if id := GetSessionID(ctx); id != "" {
		attrs = append(attrs, attribute.String("session.id", id))
	}
	if n := GetAttempt(ctx); n > 0 {
		attrs = append(attrs, attribute.Int("query.attempt", n))
	}
	return attrs
}
