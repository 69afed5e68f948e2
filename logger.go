package graphbolt

import (
	"fmt"
	"log"
	"os"
)

// Logger is the driver's optional logging seam (spec.md §1a of
// SPEC_FULL.md): callers inject one via WithLogger, the core never forces a
// concrete implementation. Shape mirrors Metrics: an interface plus a
// std-library-backed default, injected through a functional option exactly
// like aznet.Metrics/WithMetrics.
type Logger interface {
	Debugf(component, format string, args ...any)
	Infof(component, format string, args ...any)
	Warnf(component, format string, args ...any)
	Errorf(component, format string, args ...any)
}

// StdLogger implements Logger on top of the standard library's *log.Logger.
type StdLogger struct {
	out   *log.Logger
	level Level
}

// Level controls which Logger calls StdLogger actually prints.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

// NewStdLogger builds a StdLogger writing to os.Stderr at LevelInfo.
func NewStdLogger() *StdLogger {
	return &StdLogger{out: log.New(os.Stderr, "", log.LstdFlags), level: LevelInfo}
}

// NewStdLoggerAt builds a StdLogger at the given minimum level.
func NewStdLoggerAt(level Level) *StdLogger {
	return &StdLogger{out: log.New(os.Stderr, "", log.LstdFlags), level: level}
}

func (l *StdLogger) logf(level Level, tag, component, format string, args ...any) {
	if level < l.level {
		return
	}
	l.out.Printf("[%s] %s: %s", tag, component, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Debugf(component, format string, args ...any) {
	l.logf(LevelDebug, "DEBUG", component, format, args...)
}
func (l *StdLogger) Infof(component, format string, args ...any) {
	l.logf(LevelInfo, "INFO", component, format, args...)
}
func (l *StdLogger) Warnf(component, format string, args ...any) {
	l.logf(LevelWarn, "WARN", component, format, args...)
}
func (l *StdLogger) Errorf(component, format string, args ...any) {
	l.logf(LevelError, "ERROR", component, format, args...)
}

// NopLogger discards everything; the package default so logging is never
// mandatory.
type NopLogger struct{}

// NewNopLogger builds a NopLogger.
func NewNopLogger() NopLogger { return NopLogger{} }

func (NopLogger) Debugf(string, string, ...any) {}
func (NopLogger) Infof(string, string, ...any)  {}
func (NopLogger) Warnf(string, string, ...any)  {}
func (NopLogger) Errorf(string, string, ...any) {}

var (
	_ Logger = (*StdLogger)(nil)
	_ Logger = NopLogger{}
)
