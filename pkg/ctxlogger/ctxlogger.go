package ctxlogger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// ContextHandler propagates slog attrs attached to a context with AppendCtx
// into every record logged through it.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(ctxKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}

	return h.Handler.Handle(ctx, r)
}

func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if attrs, ok := parent.Value(ctxKey{}).([]slog.Attr); ok {
		copied := make([]slog.Attr, len(attrs), len(attrs)+1)
		copy(copied, attrs)

		return context.WithValue(parent, ctxKey{}, append(copied, attr))
	}

	return context.WithValue(parent, ctxKey{}, []slog.Attr{attr})
}
