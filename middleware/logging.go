package middleware

import (
	"context"
	"log/slog"
)

// LoggingHook records query and invalidate events on an slog.Logger. Pair
// it with a logring.Handler to keep the last N events inspectable in
// process.
type LoggingHook struct {
	log *slog.Logger
}

// Logging creates the hook. A nil logger falls back to slog.Default().
func Logging(log *slog.Logger) *LoggingHook {
	if log == nil {
		log = slog.Default()
	}
	return &LoggingHook{log: log}
}

var _ Hook = (*LoggingHook)(nil)

func (h *LoggingHook) Before(ctx context.Context, op Op, key string) {
	h.log.DebugContext(ctx, "cache operation started", "op", string(op), "key", key)
}

func (h *LoggingHook) After(ctx context.Context, op Op, key string, err error) {
	if err != nil {
		h.log.ErrorContext(ctx, "cache operation failed", "op", string(op), "key", key, "error", err)
		return
	}
	h.log.InfoContext(ctx, "cache operation completed", "op", string(op), "key", key)
}
