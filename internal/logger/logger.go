// Package logger provides leveled, context-aware structured logging shared
// by the compiler and agent binaries.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Level mirrors slog's levels so callers don't need to import log/slog
// just to configure verbosity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format selects the rendering of log records.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures the package-level logger.
type Config struct {
	Level  Level
	Format Format
	Output string // "stdout", "stderr", or a file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value

	mu      sync.Mutex
	handler slog.Handler
	slogger *slog.Logger
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store(FormatText)
	reconfigure(os.Stderr)
}

// Init configures the logger's level, format, and destination.
func Init(cfg Config) error {
	currentLevel.Store(int32(cfg.Level))
	currentFormat.Store(cfg.Format)

	var w io.Writer
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.Output, err)
		}
		w = f
	}
	reconfigure(w)
	return nil
}

// InitWithWriter is the test-oriented entry point: it bypasses file/fd
// handling entirely and installs the given writer directly.
func InitWithWriter(cfg Config, w io.Writer) {
	currentLevel.Store(int32(cfg.Level))
	currentFormat.Store(cfg.Format)
	reconfigure(w)
}

func reconfigure(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	currentWriter = w
	opts := &slog.HandlerOptions{
		Level: levelVar(),
	}

	format, _ := currentFormat.Load().(Format)
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = newColorTextHandler(w, opts, isTerminal(w))
	}
	slogger = slog.New(handler)
}

func levelVar() *slog.LevelVar {
	lv := &slog.LevelVar{}
	lv.Set(Level(currentLevel.Load()).slog())
	return lv
}

// SetLevel adjusts verbosity without reopening the output.
func SetLevel(l Level) {
	currentLevel.Store(int32(l))
	mu.Lock()
	w := currentWriter
	mu.Unlock()
	reconfigure(w)
}

var currentWriter io.Writer = os.Stderr

// SetFormat switches between text and JSON rendering without reopening
// the output.
func SetFormat(f Format) {
	currentFormat.Store(f)
	mu.Lock()
	w := currentWriter
	mu.Unlock()
	reconfigure(w)
}

// ctxKey carries request/packet-batch scoped fields injected by FromContext.
type ctxKey struct{}

// Fields is a bag of contextual attributes attached to a context.Context
// and automatically appended by the *Ctx logging functions.
type Fields struct {
	TraceID  string
	SpanID   string
	AgentID  string
	ChainID  string
	CoreID   int
	Extra    map[string]any
}

// WithFields returns a child context carrying the given fields.
func WithFields(ctx context.Context, f Fields) context.Context {
	return context.WithValue(ctx, ctxKey{}, f)
}

func fromContext(ctx context.Context) []any {
	f, ok := ctx.Value(ctxKey{}).(Fields)
	if !ok {
		return nil
	}
	var args []any
	if f.TraceID != "" {
		args = append(args, "trace_id", f.TraceID)
	}
	if f.SpanID != "" {
		args = append(args, "span_id", f.SpanID)
	}
	if f.AgentID != "" {
		args = append(args, "agent_id", f.AgentID)
	}
	if f.ChainID != "" {
		args = append(args, "chain_id", f.ChainID)
	}
	if f.CoreID != 0 {
		args = append(args, "core", f.CoreID)
	}
	for k, v := range f.Extra {
		args = append(args, k, v)
	}
	return args
}

func get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return slogger
}

func Debug(msg string, args ...any) { get().Debug(msg, args...) }
func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Warn(msg string, args ...any)  { get().Warn(msg, args...) }
func Error(msg string, args ...any) { get().Error(msg, args...) }

func DebugCtx(ctx context.Context, msg string, args ...any) {
	get().DebugContext(ctx, msg, append(fromContext(ctx), args...)...)
}
func InfoCtx(ctx context.Context, msg string, args ...any) {
	get().InfoContext(ctx, msg, append(fromContext(ctx), args...)...)
}
func WarnCtx(ctx context.Context, msg string, args ...any) {
	get().WarnContext(ctx, msg, append(fromContext(ctx), args...)...)
}
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	get().ErrorContext(ctx, msg, append(fromContext(ctx), args...)...)
}

// With returns a derived *slog.Logger with the given attributes attached,
// for call sites that want to hold on to a scoped logger (e.g. per-core).
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
