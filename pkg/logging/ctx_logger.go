package logging

import (
	"context"
)

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from the context.
// Returns a no-op logger if not found.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return Nop()
}

// OrNop returns logger, or a no-op logger when logger is nil.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return noOpLogger{}
}

// noOpLogger is a logger that does nothing (useful for tests or when logger is not available).
type noOpLogger struct{}

func (noOpLogger) Debug(msg string, fields ...Field) {}
func (noOpLogger) Info(msg string, fields ...Field)  {}
func (noOpLogger) Warn(msg string, fields ...Field)  {}
func (noOpLogger) Error(msg string, fields ...Field) {}
func (noOpLogger) Fatal(msg string, fields ...Field) {}
func (n noOpLogger) With(fields ...Field) Logger     { return n }
func (n noOpLogger) WithError(err error) Logger      { return n }
