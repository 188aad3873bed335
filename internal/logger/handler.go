package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"
)

// colorTextHandler renders records as human-scannable single lines with
// ANSI color when the destination is a terminal, and falls back to plain
// text otherwise (files, pipes, CI logs).
type colorTextHandler struct {
	w      io.Writer
	opts   *slog.HandlerOptions
	color  bool
	attrs  []slog.Attr
	groups []string
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *colorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &colorTextHandler{w: w, opts: opts, color: color}
}

func (h *colorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *colorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Format("2006-01-02T15:04:05.000Z07:00"))
	buf.WriteByte(' ')

	level, reset := levelColor(r.Level, h.color)
	buf.WriteString(level)
	buf.WriteString(fmt.Sprintf("%-5s", r.Level.String()))
	buf.WriteString(reset)
	buf.WriteByte(' ')

	buf.WriteString(r.Message)

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		fmt.Fprintf(&buf, "%v", a.Value.Any())
	}
	buf.WriteByte('\n')

	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &colorTextHandler{w: h.w, opts: h.opts, color: h.color, groups: h.groups}
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return n
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	n := &colorTextHandler{w: h.w, opts: h.opts, color: h.color, attrs: h.attrs}
	n.groups = append(append([]string{}, h.groups...), name)
	return n
}

func levelColor(l slog.Level, color bool) (prefix, reset string) {
	if !color {
		return "", ""
	}
	switch {
	case l >= slog.LevelError:
		return "\x1b[31m", "\x1b[0m"
	case l >= slog.LevelWarn:
		return "\x1b[33m", "\x1b[0m"
	case l >= slog.LevelInfo:
		return "\x1b[36m", "\x1b[0m"
	default:
		return "\x1b[90m", "\x1b[0m"
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
