package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"
)

// Logger defines a minimal, printf-style logging contract.
//
// Components depend on this interface rather than a concrete logger so
// tests can swap in Nop() and callers can inject their own sink.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var (
	levelVar slog.LevelVar

	defaultMu      sync.RWMutex
	defaultHandler slog.Handler
)

func handler() slog.Handler {
	defaultMu.RLock()
	h := defaultHandler
	defaultMu.RUnlock()
	if h != nil {
		return h
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultHandler == nil {
		defaultHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &levelVar})
	}
	return defaultHandler
}

// SetLevel adjusts the threshold for all component loggers. Accepted
// values are debug, info, warn and error; anything else maps to info.
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// SetOutput redirects all component loggers to w. Intended for tests and
// for the CLI, which keeps stderr free for rendered output. A nil writer
// restores the stderr default.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	defaultMu.Lock()
	defaultHandler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: &levelVar})
	defaultMu.Unlock()
}

type slogLogger struct {
	component string
}

func (l *slogLogger) log(level slog.Level, format string, args ...any) {
	logger := slog.New(handler()).With("component", l.component)
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	logger.Log(context.Background(), level, msg)
}

func (l *slogLogger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *slogLogger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *slogLogger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *slogLogger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	component = strings.TrimSpace(component)
	if component == "" {
		component = "inkwell"
	}
	return &slogLogger{component: component}
}
