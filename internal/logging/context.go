package logging

import "context"

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the logger attached to ctx, or the package
// default if none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext returns a copy of ctx carrying l, retrievable via FromContext.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext attaches traceID to ctx as a logger field and returns
// both the new context and the logger, so a caller that generated its
// own correlation id (e.g. an HTTP request id) can make it available to
// everything downstream that pulls its logger from the request context.
func WithTraceContext(ctx context.Context, traceID string) (context.Context, *Logger) {
	l := FromContext(ctx).WithTraceID(traceID)
	return NewContext(ctx, l), l
}
