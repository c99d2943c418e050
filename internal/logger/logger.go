package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ptrace "stock-sentiment-predictor/internal/trace"
)

var (
	// Global logger instance
	globalLogger = slog.Default()
	// Log level controlled by environment variable
	logLevel slog.Level
	// Whether detailed logging is enabled
	detailedLogging bool
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json or text
	DetailedLogging bool   // Enable detailed logs
	TracingEnabled  bool   // Enable OpenTelemetry tracing
}

// Init initializes the global logger and tracer based on environment variables
func Init() error {
	return InitWithConfig(LoadConfigFromEnv())
}

// LoadConfigFromEnv loads logging configuration from environment variables
func LoadConfigFromEnv() LogConfig {
	return LogConfig{
		Level:           getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:          getEnvOrDefault("LOG_FORMAT", "json"),
		DetailedLogging: getEnvOrDefault("LOG_DETAILED", "false") == "true",
		TracingEnabled:  getEnvOrDefault("LOG_TRACING_ENABLED", "true") == "true",
	}
}

// InitWithConfig initializes the logger and tracer with specific configuration
func InitWithConfig(config LogConfig) error {
	return InitWithWriter(config, os.Stdout)
}

// InitWithWriter is InitWithConfig with an explicit destination.
func InitWithWriter(config LogConfig, w io.Writer) error {
	logLevel = parseLogLevel(config.Level)
	detailedLogging = config.DetailedLogging
	if detailedLogging && logLevel > slog.LevelDebug {
		logLevel = slog.LevelDebug
	}

	// Source is added manually in logWithTrace so the reported caller skips the helpers
	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
		})
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)

	if config.TracingEnabled {
		if err := ptrace.Init(); err != nil {
			globalLogger.Warn("Failed to initialize OpenTelemetry tracer, tracing disabled", "error", err)
		}
	} else {
		ptrace.Disable()
	}

	return nil
}

// Shutdown flushes pending spans
func Shutdown(ctx context.Context) error {
	return ptrace.Shutdown(ctx)
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// StartSpan starts a new OpenTelemetry span
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return ptrace.StartSpan(ctx, spanName, opts...)
}

func getTraceAttrs(ctx context.Context) []any {
	traceID, spanID, ok := ptrace.GetTraceFields(ctx)
	if !ok {
		return nil
	}
	return []any{"trace_id", traceID, "span_id", spanID}
}

// Debug logs a debug message
func Debug(ctx context.Context, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	logWithTrace(ctx, slog.LevelDebug, msg, 2, args...)
}

// Info logs an info message
func Info(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, 2, args...)
}

// Warn logs a warning message
func Warn(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelWarn, msg, 2, args...)
}

// Error logs an error message
func Error(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelError, msg, 2, args...)
}

// ErrorWithErr logs an error message with an error object
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	logWithTrace(ctx, slog.LevelError, msg, 2, append([]any{"error", err}, args...)...)
}

// DebugSkip is Debug for middleware: skip extra frames so the source points at the real caller.
func DebugSkip(ctx context.Context, skip int, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	logWithTrace(ctx, slog.LevelDebug, msg, 2+skip, args...)
}

// InfoSkip is Info with extra frames skipped
func InfoSkip(ctx context.Context, skip int, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, 2+skip, args...)
}

// WarnSkip is Warn with extra frames skipped
func WarnSkip(ctx context.Context, skip int, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelWarn, msg, 2+skip, args...)
}

// ErrorWithErrSkip is ErrorWithErr with extra frames skipped
func ErrorWithErrSkip(ctx context.Context, skip int, msg string, err error, args ...any) {
	recordSpanError(ctx, err)
	logWithTrace(ctx, slog.LevelError, msg, 2+skip, append([]any{"error", err}, args...)...)
}

func recordSpanError(ctx context.Context, err error) {
	if !ptrace.Enabled() || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// logWithTrace logs a message with trace ID and span ID if available.
// skip is the number of stack frames between runtime.Caller and the real caller.
func logWithTrace(ctx context.Context, level slog.Level, msg string, skip int, args ...any) {
	if traceAttrs := getTraceAttrs(ctx); traceAttrs != nil {
		args = append(traceAttrs, args...)
	}

	if detailedLogging {
		if pc, file, line, ok := runtime.Caller(skip); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				args = append(args, "source", slog.GroupValue(
					slog.String("function", fn.Name()),
					slog.String("file", file),
					slog.Int("line", line),
				))
			}
		}
	}

	globalLogger.Log(ctx, level, msg, args...)
}

// OperationTimer helps measure operation duration with OpenTelemetry spans
type OperationTimer struct {
	ctx    context.Context
	span   trace.Span
	start  time.Time
	fields []any
}

// StartOperation starts timing an operation with an OpenTelemetry span
func StartOperation(ctx context.Context, operation string, fields ...any) *OperationTimer {
	var span trace.Span
	if ptrace.Enabled() {
		ctx, span = StartSpan(ctx, operation)
		span.SetAttributes(toAttributes(fields)...)
	}

	Debug(ctx, "Operation started", append([]any{"operation", operation}, fields...)...)

	return &OperationTimer{
		ctx:    ctx,
		span:   span,
		start:  time.Now(),
		fields: fields,
	}
}

// End completes the operation timer and logs the duration
func (ot *OperationTimer) End(additionalFields ...any) {
	duration := time.Since(ot.start)

	if ot.span != nil {
		ot.span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		ot.span.SetAttributes(toAttributes(additionalFields)...)
		ot.span.SetStatus(codes.Ok, "completed")
		ot.span.End()
	}

	fields := append([]any{}, ot.fields...)
	fields = append(fields, "duration_ms", duration.Milliseconds())
	Debug(ot.ctx, "Operation completed", append(fields, additionalFields...)...)
}

// EndWithError completes the operation timer with an error
func (ot *OperationTimer) EndWithError(err error, additionalFields ...any) {
	duration := time.Since(ot.start)

	if ot.span != nil {
		ot.span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		ot.span.RecordError(err)
		ot.span.SetStatus(codes.Error, err.Error())
		ot.span.End()
	}

	fields := append([]any{}, ot.fields...)
	fields = append(fields, "duration_ms", duration.Milliseconds(), "error", err)
	Error(ot.ctx, "Operation failed", append(fields, additionalFields...)...)
}

// GetContext returns the context with the span
func (ot *OperationTimer) GetContext() context.Context {
	return ot.ctx
}

func toAttributes(fields []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		}
	}
	return attrs
}

// Prediction logs a stored prediction (always logged regardless of level)
func Prediction(ctx context.Context, entity, direction, dateFor string, fields ...any) {
	addEvent(ctx, "prediction_made",
		attribute.String("entity", entity),
		attribute.String("direction", direction),
		attribute.String("date_for", dateFor),
	)

	allFields := append([]any{
		"type", "PREDICTION",
		"entity", entity,
		"direction", direction,
		"date_for", dateFor,
	}, fields...)
	logWithTrace(ctx, slog.LevelInfo, "Prediction recorded", 2, allFields...)
}

// Verification logs the outcome of checking one prediction record
func Verification(ctx context.Context, entity, outcome string, fields ...any) {
	addEvent(ctx, "prediction_verified",
		attribute.String("entity", entity),
		attribute.String("outcome", outcome),
	)

	level := slog.LevelInfo
	if outcome == "error" {
		level = slog.LevelWarn
	}
	allFields := append([]any{
		"type", "VERIFICATION",
		"entity", entity,
		"outcome", outcome,
	}, fields...)
	logWithTrace(ctx, level, "Prediction verified", 2, allFields...)
}

func addEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if !ptrace.Enabled() {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
