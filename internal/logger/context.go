package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const TickIDKey contextKey = "tick_id"
const MessageKeyKey contextKey = "msg_key"

func WithTickID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TickIDKey, id)
}

func GetTickID(ctx context.Context) string {
	if id, ok := ctx.Value(TickIDKey).(string); ok {
		return id
	}
	return ""
}

func WithMessageKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, MessageKeyKey, key)
}

func GetMessageKey(ctx context.Context) string {
	if key, ok := ctx.Value(MessageKeyKey).(string); ok {
		return key
	}
	return ""
}

// From returns the default logger annotated with whatever tick and message keys ctx carries.
func From(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := GetTickID(ctx); id != "" {
		l = l.With("tick_id", id)
	}
	if key := GetMessageKey(ctx); key != "" {
		l = l.With("msg_key", key)
	}
	return l
}
