package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes that change while the program runs,
// such as the current session and simulation time.
type ContextProvider func() []slog.Attr

// SessionContext builds a ContextProvider from accessors for the session
// ID and the simulation clock. Either may be nil.
func SessionContext(sessionID func() string, simTime func() float64) ContextProvider {
	return func() []slog.Attr {
		attrs := make([]slog.Attr, 0, 2)
		if sessionID != nil {
			if id := sessionID(); id != "" {
				attrs = append(attrs, slog.String("session", id))
			}
		}
		if simTime != nil {
			attrs = append(attrs, slog.Float64("simTime", simTime()))
		}
		return attrs
	}
}

// ContextHandler wraps another handler and injects dynamic context attributes.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

// NewContextHandler creates a handler that adds dynamic context to each record.
func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{
		inner:    inner,
		provider: provider,
	}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
