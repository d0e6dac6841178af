package logx

import (
	"context"

	"pkt.systems/agentdeck/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	providerKey contextKey = iota
	threadKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithProvider annotates the logger with the provider id if present.
func WithProvider(ctx context.Context, providerID schema.ProviderID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if providerID != "" {
		if current, ok := ctx.Value(providerKey).(schema.ProviderID); ok && current == providerID {
			return log
		}
		log = log.With("provider", providerID)
	}
	return log
}

// WithProviderThread annotates the logger with provider and thread identifiers.
func WithProviderThread(ctx context.Context, providerID schema.ProviderID, threadID schema.ThreadID) pslog.Logger {
	log := WithProvider(ctx, providerID)
	if threadID != "" {
		if current, ok := ctx.Value(threadKey).(schema.ThreadID); ok && current == threadID {
			return log
		}
		log = log.With("thread", threadID)
	}
	return log
}

// ContextWithProvider stores the provider marker on the context for log de-duplication.
func ContextWithProvider(ctx context.Context, providerID schema.ProviderID) context.Context {
	if ctx == nil || providerID == "" {
		return ctx
	}
	return context.WithValue(ctx, providerKey, providerID)
}

// ContextWithThread stores the thread marker on the context for log de-duplication.
func ContextWithThread(ctx context.Context, threadID schema.ThreadID) context.Context {
	if ctx == nil || threadID == "" {
		return ctx
	}
	return context.WithValue(ctx, threadKey, threadID)
}

// ContextWithProviderLogger attaches the logger and provider marker to the context.
func ContextWithProviderLogger(ctx context.Context, log pslog.Logger, providerID schema.ProviderID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithProvider(ctx, providerID)
}

// CopyContextFields copies provider/thread markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if providerID, ok := src.Value(providerKey).(schema.ProviderID); ok && providerID != "" {
		dst = ContextWithProvider(dst, providerID)
	}
	if threadID, ok := src.Value(threadKey).(schema.ThreadID); ok && threadID != "" {
		dst = ContextWithThread(dst, threadID)
	}
	return dst
}
