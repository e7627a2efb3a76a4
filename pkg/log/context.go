package log

import "context"

const loggerContextKey ctxKey = iota

type ctxKey byte

// ContextWithLogger returns a new context carrying the given logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext returns the logger stored in ctx, or the default logger.
func LoggerFromContext(ctx context.Context) Logger {
	if val, ok := ctx.Value(loggerContextKey).(Logger); ok && val != nil {
		return val
	}

	return Default()
}
