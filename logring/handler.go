package logring

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

/*
Handler is an slog.Handler that appends every enabled record to a Ring.

It is meant to run alongside a real output handler (via a fan-out or as the
logger given to the logging middleware), so the process keeps a bounded,
queryable tail of cache activity without retaining unbounded log output.
*/
type Handler struct {
	ring  *Ring
	level slog.Leveler

	// attrs accumulated via WithAttrs, keys already qualified with the
	// group path that was open when each was added.
	attrs []slog.Attr

	// prefix is the currently open group path, dot-joined. It applies to
	// record attrs and to future WithAttrs calls, never retroactively.
	prefix string
}

// NewHandler creates a handler capturing records at or above level into
// ring. A nil level captures everything from Info up.
func NewHandler(ring *Ring, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{ring: ring, level: level}
}

var _ slog.Handler = (*Handler)(nil)

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Resolve().Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		fmt.Fprintf(&b, " %s=%v", h.qualify(a.Key), a.Value.Resolve().Any())
		return true
	})

	h.ring.Append(Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: b.String(),
	})
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	n := *h
	n.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	n.attrs = append(n.attrs, h.attrs...)
	for _, a := range attrs {
		if a.Equal(slog.Attr{}) {
			continue
		}
		n.attrs = append(n.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return &n
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	n := *h
	if n.prefix != "" {
		n.prefix += "." + name
	} else {
		n.prefix = name
	}
	return &n
}

func (h *Handler) qualify(key string) string {
	if h.prefix == "" {
		return key
	}
	return h.prefix + "." + key
}
