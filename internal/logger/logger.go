// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and carries a signal
// ID through context.Context so every log line produced while handling one
// trade intent can be correlated across both processes.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type ctxKey string

const signalIDKey ctxKey = "signal_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithSignalID stores a signal ID in the context for downstream propagation.
func WithSignalID(ctx context.Context, signalID string) context.Context {
	return context.WithValue(ctx, signalIDKey, signalID)
}

// SignalID extracts the signal ID from context. Returns "" if not set.
func SignalID(ctx context.Context) string {
	if v, ok := ctx.Value(signalIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateSignalID creates a signal ID from a symbol and dispatch time.
// Format: "{symbol}-{unixNano}" — lightweight, no UUID dependency.
func GenerateSignalID(symbol string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, ts.UnixNano())
}

// LogWithSignal returns slog attributes including the signal ID from context.
// Usage: slog.Info("msg", logger.LogWithSignal(ctx)...)
func LogWithSignal(ctx context.Context) []any {
	sid := SignalID(ctx)
	if sid == "" {
		return nil
	}
	return []any{slog.String("signal_id", sid)}
}
