package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	level slog.LevelVar

	mu      sync.RWMutex
	slogger *slog.Logger
	format            = "text"
	output  io.Writer = os.Stdout
	color   bool
	closer  io.Closer
)

func init() {
	color = isTerminal(os.Stdout.Fd())
	rebuild()
}

// parseLevel converts a level name. Unknown names report false.
func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// rebuild swaps in a handler for the current output and format. The
// level is read through the shared LevelVar, so level changes need no
// rebuild.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()
	if format == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: &level}))
		return
	}
	slogger = slog.New(newTextHandler(output, &level, color))
}

// Init initializes the logger with the given configuration.
// Output can be "stdout", "stderr", or a file path.
func Init(cfg Config) error {
	if cfg.Level != "" {
		l, ok := parseLevel(cfg.Level)
		if !ok {
			return fmt.Errorf("unknown log level %q", cfg.Level)
		}
		level.Set(l)
	}

	mu.Lock()
	switch f := strings.ToLower(cfg.Format); f {
	case "":
	case "text", "json":
		format = f
	default:
		mu.Unlock()
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.Output != "" {
		var w io.Writer
		var c io.Closer
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w, color = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			w, color = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			w, c, color = f, f, false
		}
		if closer != nil {
			_ = closer.Close()
		}
		output, closer = w, c
	}
	mu.Unlock()

	rebuild()
	return nil
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) { getLogger().Debug(msg, args...) }

// Info logs at info level with structured fields
func Info(msg string, args ...any) { getLogger().Info(msg, args...) }

// Warn logs at warn level with structured fields
func Warn(msg string, args ...any) { getLogger().Warn(msg, args...) }

// Error logs at error level with structured fields
func Error(msg string, args ...any) { getLogger().Error(msg, args...) }

// DebugCtx logs at debug level, prefixed with the request fields carried
// by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if level.Level() > slog.LevelDebug {
		return
	}
	getLogger().Debug(msg, appendContextFields(ctx, args)...)
}

// InfoCtx logs at info level with context
func InfoCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Info(msg, appendContextFields(ctx, args)...)
}

func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	out := make([]any, 0, 8+len(args))
	if lc.TraceID != "" {
		out = append(out, KeyTraceID, lc.TraceID, KeySpanID, lc.SpanID)
	}
	if lc.Command != "" {
		out = append(out, KeyCommand, lc.Command)
	}
	if lc.ClientAddr != "" {
		out = append(out, KeyClientAddr, lc.ClientAddr)
	}
	return append(out, args...)
}
