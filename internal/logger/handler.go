package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	ansiReset   = "\033[0m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[90m"
	ansiSky     = "\033[94m"
)

// highlighted attribute keys and the color of their values.
var highlighted = map[string]string{
	"appid":  ansiMagenta,
	"source": ansiSky,
	"mirror": ansiSky,
	"stage":  ansiCyan,
	"path":   ansiBlue,
	"error":  ansiRed,
}

// lockedWriter serializes whole lines from every handler sharing it.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) writeLine(s string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := io.WriteString(lw.w, s)
	return err
}

// consoleHandler prints one human-readable line per record:
//
//	15:04:05 INFO  [dlc] DLCs installed appid=570 count=3
type consoleHandler struct {
	out       *lockedWriter
	level     slog.Level
	colored   bool
	component string
	attrs     []slog.Attr
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	h.paint(&b, ansiGray, r.Time.Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	h.paint(&b, levelColor(r.Level), padLevel(r.Level))
	b.WriteByte(' ')
	if h.component != "" {
		b.WriteString("[" + h.component + "] ")
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, a)
		return true
	})
	b.WriteByte('\n')

	return h.out.writeLine(b.String())
}

func (h *consoleHandler) writeAttr(b *strings.Builder, a slog.Attr) {
	b.WriteString(" " + a.Key + "=")
	h.paint(b, highlighted[a.Key], a.Value.String())
}

func (h *consoleHandler) paint(b *strings.Builder, color, s string) {
	if !h.colored || color == "" {
		b.WriteString(s)
		return
	}
	b.WriteString(color + s + ansiReset)
}

func (h *consoleHandler) clone() *consoleHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.attrs = append(c.attrs, attrs...)
	return c
}

// WithGroup is a no-op: console lines are flat.
func (h *consoleHandler) WithGroup(string) slog.Handler {
	return h.clone()
}

func padLevel(l slog.Level) string {
	s := l.String()
	if len(s) < 5 {
		s += strings.Repeat(" ", 5-len(s))
	}
	return s
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiGreen
	default:
		return ansiCyan
	}
}

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

// withPrefix sets the console prefix of h to name. Handlers without a
// prefix, like the file handler, get a component attribute instead.
func withPrefix(h slog.Handler, name string) slog.Handler {
	switch typed := h.(type) {
	case *consoleHandler:
		c := typed.clone()
		c.component = name
		return c
	case fanout:
		return typed.each(func(inner slog.Handler) slog.Handler { return withPrefix(inner, name) })
	default:
		return h.WithAttrs([]slog.Attr{slog.String("component", name)})
	}
}
