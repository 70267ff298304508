package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	requestCtxKey struct{}
	userCtxKey    struct{}
	screenCtxKey  struct{}
	loggerCtxKey  struct{}
)

// idPattern bounds ids copied into log fields.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if id := UserIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("user.id", id))
	}
	if id := ScreenIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("screen.id", id))
	}
	return fields
}

func withID(ctx context.Context, key any, id string) context.Context {
	if !idPattern.MatchString(id) {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key any) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// WithRequestID adds a request id to ctx. Malformed ids are dropped.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string { return idFrom(ctx, requestCtxKey{}) }

// WithUserID adds the authenticated user id to ctx. Malformed ids are dropped.
func WithUserID(ctx context.Context, id string) context.Context {
	return withID(ctx, userCtxKey{}, id)
}

// UserIDFromContext returns the user id, or "".
func UserIDFromContext(ctx context.Context) string { return idFrom(ctx, userCtxKey{}) }

// WithScreenID adds a screen session id to ctx. Malformed ids are dropped.
func WithScreenID(ctx context.Context, id string) context.Context {
	return withID(ctx, screenCtxKey{}, id)
}

// ScreenIDFromContext returns the screen id, or "".
func ScreenIDFromContext(ctx context.Context) string { return idFrom(ctx, screenCtxKey{}) }

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return New(nil)
}
