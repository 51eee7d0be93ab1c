package logging

import (
	"context"
	"fmt"
	"log/slog"
)

type requestIDKey struct{}

// WithRequestID stores the request ID for loggers created further down.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestID extracts the request ID from a context, or "".
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// Logger provides structured logging for services
type Logger struct {
	base      *slog.Logger
	requestID string
}

// FromContext creates a logger with request context
func FromContext(ctx context.Context) *Logger {
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = "unknown"
	}
	return &Logger{base: slog.Default(), requestID: requestID}
}

// LogError logs an error with context
func (l *Logger) LogError(operation string, err error) {
	l.base.Error("operation failed", "request_id", l.requestID, "operation", operation, "error", err)
}

// LogErrorf logs a formatted error with context
func (l *Logger) LogErrorf(operation string, format string, args ...any) {
	l.base.Error(fmt.Sprintf(format, args...), "request_id", l.requestID, "operation", operation)
}

// LogInfo logs an info message with context
func (l *Logger) LogInfo(operation string, message string) {
	l.base.Info(message, "request_id", l.requestID, "operation", operation)
}

// LogInfof logs a formatted info message with context
func (l *Logger) LogInfof(operation string, format string, args ...any) {
	l.base.Info(fmt.Sprintf(format, args...), "request_id", l.requestID, "operation", operation)
}

// LogWarn logs a warning with context
func (l *Logger) LogWarn(operation string, message string) {
	l.base.Warn(message, "request_id", l.requestID, "operation", operation)
}

// LogWarnf logs a formatted warning with context
func (l *Logger) LogWarnf(operation string, format string, args ...any) {
	l.base.Warn(fmt.Sprintf(format, args...), "request_id", l.requestID, "operation", operation)
}
