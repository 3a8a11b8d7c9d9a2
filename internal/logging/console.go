// ABOUTME: Interactive console handler for slog: one colored line per record.
// ABOUTME: Group names become dotted key prefixes; writes go to one shared writer.

package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ConsoleHandler renders records as single colored lines for interactive
// terminals. Derived handlers share the parent's writer and mutex, so
// WithAttrs and WithGroup copies never interleave output.
type ConsoleHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

// NewConsoleHandler returns a handler writing records at or above level
// to out.
func NewConsoleHandler(out io.Writer, level slog.Level) *ConsoleHandler {
	return &ConsoleHandler{out: out, mu: &sync.Mutex{}, level: level}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	line.WriteByte(' ')
	line.WriteString(levelTag(r.Level))
	line.WriteByte(' ')
	line.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&line, a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&line, h.prefix+a.Key, a.Value)
		return true
	})
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return next
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix = h.prefix + name + "."
	return next
}

func (h *ConsoleHandler) clone() *ConsoleHandler {
	return &ConsoleHandler{
		out:    h.out,
		mu:     h.mu,
		level:  h.level,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		prefix: h.prefix,
	}
}

func writeAttr(line *strings.Builder, key string, v slog.Value) {
	line.WriteString(color.HiBlackString(" " + key + "="))
	line.WriteString(v.String())
}

// levelTag maps a level to its colored three-letter tag.
func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return color.New(color.FgRed, color.Bold).Sprint("ERR")
	case level >= slog.LevelWarn:
		return color.YellowString("WRN")
	case level >= slog.LevelInfo:
		return color.CyanString("INF")
	default:
		return color.MagentaString("DBG")
	}
}
