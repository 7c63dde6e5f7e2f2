package log

import (
	"context"
	"log/slog"
	"time"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// NewContext returns a context carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	// Return default logger if not found
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogAPICall logs the completion of an outbound API call
func (sl *StructuredLogger) LogAPICall(ctx context.Context, method, path, query, requestID string, statusCode int, elapsed time.Duration) {
	level := slog.LevelDebug
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 || statusCode == 0 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithAPIRequest(method, path, query).
		WithAPIResponse(statusCode, elapsed.Milliseconds(), statusCode > 0 && statusCode < 400).
		WithRequestID(requestID)
	if t := ErrorTypeForStatus(statusCode); t != "" {
		fields[FieldErrorType] = t
	}

	sl.logger.WithComponent(ComponentAPI).log(ctx, level, "API call completed", fields.ToSlice())
}

// ErrorTypeForStatus classifies an API response status; 0 means the
// request never got a response. Successful statuses have no type.
func ErrorTypeForStatus(statusCode int) string {
	switch {
	case statusCode == 0:
		return ErrorTypeNetwork
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode >= 500:
		return ErrorTypeServer
	case statusCode >= 400:
		return ErrorTypeValidation
	}
	return ""
}

// LogExport logs a finished export
func (sl *StructuredLogger) LogExport(ctx context.Context, resource, scope, sink, location string, rows int) {
	fields := NewFields().
		WithResource(resource, "").
		WithOperation(OpExport)
	fields[FieldScope] = scope
	fields[FieldSink] = sink
	fields[FieldLocation] = location
	fields[FieldRows] = rows

	sl.logger.WithComponent(ComponentExport).InfoContext(ctx, "Export written", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)

	sl.logger.WithComponent(component).ErrorContext(ctx, msg, allFields.ToSlice()...)
}
