package trace

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "stock-sentiment-predictor"

var (
	mu             sync.RWMutex
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

// Init installs a stdout span exporter unless LOG_TRACING_ENABLED=false.
// Spans go to TRACE_OUTPUT when set, stderr otherwise so they do not interleave with logs.
func Init() error {
	if getEnv("LOG_TRACING_ENABLED", "true") != "true" {
		Disable()
		return nil
	}

	out := os.Stderr
	if p := os.Getenv("TRACE_OUTPUT"); p != "" {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		out = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	tracerProvider = tp
	tracer = otel.Tracer(serviceName)
	enabled = true
	mu.Unlock()
	return nil
}

// Disable turns span creation off; StartSpan becomes a passthrough.
func Disable() {
	mu.Lock()
	enabled = false
	tracer = nil
	mu.Unlock()
}

func Shutdown(ctx context.Context) error {
	mu.RLock()
	tp := tracerProvider
	mu.RUnlock()
	if tp != nil {
		return tp.Shutdown(ctx)
	}
	return nil
}

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	t, on := tracer, enabled
	mu.RUnlock()
	if !on || t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.Start(ctx, spanName, opts...)
}

func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !Enabled() {
		return "", "", false
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return "", "", false
	}
	return span.SpanContext().TraceID().String(),
		span.SpanContext().SpanID().String(),
		true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
