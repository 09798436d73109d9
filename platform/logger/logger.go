// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RunIDKey is the context key for the pipeline run ID
	RunIDKey contextKey = "run_id"
	// WebsiteIDKey is the context key for the website being ingested
	WebsiteIDKey contextKey = "website_id"
	// BranchIDKey is the context key for the branch being dispatched to
	BranchIDKey contextKey = "branch_id"
	// OperationIDKey is the context key for a dispatch operation ID
	OperationIDKey contextKey = "operation_id"
)

var contextKeys = []contextKey{RunIDKey, WebsiteIDKey, BranchIDKey, OperationIDKey}

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w.
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

// Discard returns a logger that drops every record. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
// Supports run_id, website_id, branch_id and operation_id.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	attrs := make([]any, 0, len(contextKeys))
	for _, key := range contextKeys {
		if value, ok := ctx.Value(key).(string); ok && value != "" {
			attrs = append(attrs, slog.String(string(key), value))
		}
	}
	if len(attrs) == 0 {
		return l
	}

	return &Logger{Logger: l.With(attrs...)}
}

// WithWebsite returns a logger scoped to one website
func (l *Logger) WithWebsite(websiteID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String(string(WebsiteIDKey), websiteID)),
	}
}

// WithBranch returns a logger scoped to one branch
func (l *Logger) WithBranch(branchID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String(string(BranchIDKey), branchID)),
	}
}

// ContextWith stores a correlation value on ctx for later WithContext calls.
func ContextWith(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// ExternalCall logs the outcome of a call to a website or dialer endpoint
func (l *Logger) ExternalCall(system, target string, status int, latencyMs float64, err error) {
	if err != nil {
		l.Warn("external_call",
			slog.String("system", system),
			slog.String("target", target),
			slog.Int("status", status),
			slog.Float64("latency_ms", latencyMs),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Debug("external_call",
		slog.String("system", system),
		slog.String("target", target),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
	)
}
