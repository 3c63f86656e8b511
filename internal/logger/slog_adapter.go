package logger

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
)

// NewSlogHandler returns a slog.Handler that forwards records to l.
// If l is nil, it returns nil.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogAdapter{log: l}
}

// NewStdLogger returns a *log.Logger whose output is logged through l at the
// given level. It is meant for APIs like http.Server.ErrorLog.
func NewStdLogger(l *Logger, level slog.Level) *log.Logger {
	return slog.NewLogLogger(NewSlogHandler(l), level)
}

type slogAdapter struct {
	log    *Logger
	groups []string
	attrs  []slog.Attr
}

func (h *slogAdapter) Enabled(_ context.Context, level slog.Level) bool {
	current := h.log.GetLevel()
	return current != LevelNone && fromSlogLevel(level) >= current
}

func (h *slogAdapter) Handle(_ context.Context, record slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)
		return true
	})

	message := strings.TrimRight(record.Message, "\n")
	if text := formatAttrs(attrs, h.groups); text != "" {
		if message == "" {
			message = text
		} else {
			message += " " + text
		}
	}

	h.log.log(fromSlogLevel(record.Level), "%s", message)
	return nil
}

func (h *slogAdapter) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &slogAdapter{
		log:    h.log,
		groups: append([]string(nil), h.groups...),
		attrs:  merged,
	}
}

func (h *slogAdapter) WithGroup(name string) slog.Handler {
	groups := append([]string(nil), h.groups...)
	if name != "" {
		groups = append(groups, name)
	}
	return &slogAdapter{
		log:    h.log,
		groups: groups,
		attrs:  append([]slog.Attr(nil), h.attrs...),
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func formatAttrs(attrs []slog.Attr, groups []string) string {
	var b strings.Builder
	for _, attr := range attrs {
		writeAttr(&b, attr, groups)
	}
	return b.String()
}

func writeAttr(b *strings.Builder, attr slog.Attr, prefix []string) {
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		nested := append(append([]string(nil), prefix...), attr.Key)
		for _, a := range attr.Value.Group() {
			writeAttr(b, a, nested)
		}
		return
	}

	key := attr.Key
	if key == "" {
		key = "attr"
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	fmt.Fprintf(b, "%s=%v", strings.Join(append(append([]string(nil), prefix...), key), "."), attr.Value)
}
