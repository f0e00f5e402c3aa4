package utils

import (
	"context"
	"log/slog"
)

func SetTraceId(ctx context.Context, traceId string) context.Context {
	return context.WithValue(ctx, TraceIdCtx, traceId)
}

func GetTraceId(ctx context.Context) string {
	if traceId, ok := ctx.Value(TraceIdCtx).(string); ok {
		return traceId
	}
	return ""
}

// TraceHandler adds the trace id carried by the record's context to every
// record logged through it
type TraceHandler struct {
	slog.Handler
}

func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceId := GetTraceId(ctx); traceId != "" {
		r.AddAttrs(slog.String("trace_id", traceId))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
