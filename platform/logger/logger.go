// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// OperatorIDKey is the context key for the operator driving a review session
	OperatorIDKey contextKey = "operator_id"
	// TraceIDKey is the context key for trace ID
	TraceIDKey contextKey = "trace_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger that writes to w. The console uses it to keep
// log lines off the interactive stream.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, operator_id, and trace_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if operatorID, ok := ctx.Value(OperatorIDKey).(string); ok && operatorID != "" {
		newLogger = newLogger.WithOperatorID(operatorID)
	}

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("trace_id", traceID)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithOperatorID returns a logger with operator ID
func (l *Logger) WithOperatorID(operatorID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("operator_id", operatorID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// PipelineStage logs the completion of one coaching pipeline stage.
func (l *Logger) PipelineStage(stage string, elapsed time.Duration, err error) {
	if err != nil {
		l.Warn("pipeline_stage",
			slog.String("stage", stage),
			slog.Float64("elapsed_ms", float64(elapsed.Microseconds())/1000),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Debug("pipeline_stage",
		slog.String("stage", stage),
		slog.Float64("elapsed_ms", float64(elapsed.Microseconds())/1000),
	)
}

// CollaboratorCall logs a call to the text generation service.
func (l *Logger) CollaboratorCall(stage, outcome string) {
	l.Info("collaborator_call",
		slog.String("stage", stage),
		slog.String("outcome", outcome),
	)
}

// DispatchResult logs the outcome of a single outbound review.
func (l *Logger) DispatchResult(recipient string, success bool, detail string) {
	if success {
		l.Info("dispatch_result",
			slog.String("recipient", recipient),
			slog.Bool("success", success),
		)
		return
	}
	l.Warn("dispatch_result",
		slog.String("recipient", recipient),
		slog.Bool("success", success),
		slog.String("detail", detail),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
