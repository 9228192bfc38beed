// Package logger provides structured, level-gated logging for procontext.
//
// Built on log/slog rather than a third-party logging library — the same
// choice the pack's largest production repo (AdguardTeam/AdGuardDNS) makes
// throughout (internal/dnssvc/dnssvc.go takes a *slog.Logger and derives
// children via .With(...)), and no pack repo reaches for zerolog/zap/logrus
// instead.
//
// Each Logger is tagged with a module name and emits either JSON
// (logging.format=json, the default) or human-readable text
// (logging.format=text) records, gated at a configured minimum level.
//
// Usage:
//
//	log := logger.New("CACHE", cfg.Logging.Level, cfg.Logging.Format)
//	log.Warn("cache_read_error", "sqlite read failed", "key", "toc:langchain", "error", err)
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger writes structured log records for a single module.
type Logger struct {
	module string
	slog   *slog.Logger
}

// New creates a Logger for the given module, gated at levelStr
// ("debug"|"info"|"warn"|"error", case-insensitive, default "info") and
// formatted per formatStr ("json"|"text", default "json").
func New(module, levelStr, formatStr string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(levelStr)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(formatStr), "text") {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	module = strings.ToUpper(module)
	return &Logger{module: module, slog: slog.New(handler).With("module", module)}
}

// With returns a child Logger carrying the same module but additional
// structured key/values attached to every record it writes.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{module: l.module, slog: l.slog.With(kv...)}
}

// Debug logs event at DEBUG level with structured key/value pairs.
func (l *Logger) Debug(event, msg string, kv ...any) {
	l.slog.Debug(msg, append([]any{"event", event}, kv...)...)
}

// Info logs event at INFO level.
func (l *Logger) Info(event, msg string, kv ...any) {
	l.slog.Info(msg, append([]any{"event", event}, kv...)...)
}

// Warn logs event at WARN level.
func (l *Logger) Warn(event, msg string, kv ...any) {
	l.slog.Warn(msg, append([]any{"event", event}, kv...)...)
}

// Error logs event at ERROR level.
func (l *Logger) Error(event, msg string, kv ...any) {
	l.slog.Error(msg, append([]any{"event", event}, kv...)...)
}

// Fatal logs event at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatal(event, msg string, kv ...any) {
	l.Error(event, msg, kv...)
	os.Exit(1)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
