package cli

import (
	"context"
	"log/slog"
)

// SplitHandler routes one slog stream to two destinations with independent
// level filters: the console at the configured level, and the rotating log
// file at debug.
type SplitHandler struct {
	console slog.Handler
	file    slog.Handler
}

func NewSplitHandler(console, file slog.Handler) *SplitHandler {
	return &SplitHandler{console: console, file: file}
}

// Enabled reports true when either destination accepts the level.
func (h *SplitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

// Handle delivers the record to each destination whose level admits it.
func (h *SplitHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.console.Enabled(ctx, record.Level) {
		if err := h.console.Handle(ctx, record); err != nil {
			return err
		}
	}
	if h.file.Enabled(ctx, record.Level) {
		return h.file.Handle(ctx, record)
	}
	return nil
}

func (h *SplitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SplitHandler{
		console: h.console.WithAttrs(attrs),
		file:    h.file.WithAttrs(attrs),
	}
}

func (h *SplitHandler) WithGroup(name string) slog.Handler {
	return &SplitHandler{
		console: h.console.WithGroup(name),
		file:    h.file.WithGroup(name),
	}
}
