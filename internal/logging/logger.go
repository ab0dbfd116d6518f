// Package logging provides the logging interface and default implementation
// used throughout the cache subsystem.
//
// Design: a small leveled interface (Error, Warn, Info, Debug, Fatal)
// inspired by Badger, Pebble, and RocksDB's own Logger abstraction. Callers
// may wrap their own structured loggers (slog, zap) if they need to.
//
// Fatalf behavior: logs at FATAL level and calls the configured
// FatalHandler. The default FatalHandler is a no-op; nothing else in this
// module installs a FatalHandler or calls Fatalf.
// Fatalf does NOT call os.Exit.
//
// Log format: YYYY/MM/DD HH:MM:SS LEVEL [component] message
//
// Example: 2026/03/05 18:45:13 INFO [tuner] re-apportioned 3 caches
//
// Component namespace prefixes are used for filtering:
//   - [engine]   — cache engine operations (LRU, ShardedLRU, LFU, BlockLockLFU)
//   - [profiler] — AET sampler / MRC reconstruction
//   - [tuner]    — tuning strategy and the manager's tuning loop
//   - [manager]  — registry, registration, drift detection
package logging

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"sync/atomic"
)

// ErrFatal is the sentinel error wrapped by fatal conditions.
// Use errors.Is(err, ErrFatal) to detect fatal errors in returned errors.
var ErrFatal = errors.New("fatal error")

// FatalHandler is called when Fatalf is invoked.
//
// Contract: FatalHandler must be safe for concurrent use.
// Contract: FatalHandler must not call Fatalf (avoid infinite recursion).
type FatalHandler func(msg string)

// Level represents the logging level.
type Level int

const (
	// LevelError logs only errors.
	LevelError Level = iota
	// LevelWarn logs warnings and errors.
	LevelWarn
	// LevelInfo logs info, warnings, and errors.
	LevelInfo
	// LevelDebug logs everything including debug messages.
	LevelDebug
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the interface used by the cache subsystem for all of its
// human-readable observable behavior (spec.md has no wire protocol and no
// persisted state — periodic log lines are the only output).
//
// Concurrency: DefaultLogger and Discard are safe for concurrent use.
// User-provided implementations MUST be safe for concurrent use, since
// every engine, the profiler, and the tuner goroutine may all log at once.
type Logger interface {
	Error(msg string)
	Errorf(format string, args ...any)
	Warn(msg string)
	Warnf(format string, args ...any)
	Info(msg string)
	Infof(format string, args ...any)
	Debug(msg string)
	Debugf(format string, args ...any)

	// Fatalf logs a fatal error and triggers the configured FatalHandler.
	// It does not stop the process.
	Fatalf(format string, args ...any)
}

// DefaultLogger is the default logger, writing to a configurable output.
// It is safe for concurrent use (log.Logger is internally synchronized;
// the level itself is behind an atomic so SetLevel can be called live).
type DefaultLogger struct {
	logger       *log.Logger
	level        atomic.Int32
	fatalHandler atomic.Pointer[FatalHandler]
}

// NewDefaultLogger creates a logger at the given level, writing to stderr.
func NewDefaultLogger(level Level) *DefaultLogger {
	return NewLogger(os.Stderr, level)
}

// NewLogger creates a logger at the given level, writing to w.
func NewLogger(w io.Writer, level Level) *DefaultLogger {
	l := &DefaultLogger{logger: log.New(w, "", log.LstdFlags)}
	l.level.Store(int32(level))
	return l
}

// SetFatalHandler sets the handler invoked by Fatalf.
func (l *DefaultLogger) SetFatalHandler(h FatalHandler) {
	l.fatalHandler.Store(&h)
}

// SetLevel changes the minimum level logged. Safe for concurrent use.
func (l *DefaultLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Level returns the current logging level.
func (l *DefaultLogger) Level() Level {
	return Level(l.level.Load())
}

func (l *DefaultLogger) enabled(at Level) bool {
	return l.Level() >= at
}

func (l *DefaultLogger) Error(msg string) {
	if l.enabled(LevelError) {
		_ = l.logger.Output(2, "ERROR "+msg)
	}
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	if l.enabled(LevelError) {
		_ = l.logger.Output(2, "ERROR "+fmt.Sprintf(format, args...))
	}
}

func (l *DefaultLogger) Warn(msg string) {
	if l.enabled(LevelWarn) {
		_ = l.logger.Output(2, "WARN "+msg)
	}
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	if l.enabled(LevelWarn) {
		_ = l.logger.Output(2, "WARN "+fmt.Sprintf(format, args...))
	}
}

func (l *DefaultLogger) Info(msg string) {
	if l.enabled(LevelInfo) {
		_ = l.logger.Output(2, "INFO "+msg)
	}
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	if l.enabled(LevelInfo) {
		_ = l.logger.Output(2, "INFO "+fmt.Sprintf(format, args...))
	}
}

func (l *DefaultLogger) Debug(msg string) {
	if l.enabled(LevelDebug) {
		_ = l.logger.Output(2, "DEBUG "+msg)
	}
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.enabled(LevelDebug) {
		_ = l.logger.Output(2, "DEBUG "+fmt.Sprintf(format, args...))
	}
}

// Fatalf logs a fatal message and triggers the configured FatalHandler.
// It does not stop the process — callers that need hard-abort semantics
// should treat a non-nil error return from the caller as the signal.
func (l *DefaultLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	_ = l.logger.Output(2, "FATAL "+msg)
	if h := l.fatalHandler.Load(); h != nil {
		(*h)(msg)
	}
}

// Namespace prefixes for log messages, used with Infof/Debugf/etc.
const (
	// NSEngine is the namespace for cache engine operations.
	NSEngine = "[engine] "
	// NSProfiler is the namespace for AET sampling / MRC reconstruction.
	NSProfiler = "[profiler] "
	// NSTuner is the namespace for tuning-strategy decisions.
	NSTuner = "[tuner] "
	// NSManager is the namespace for registry and drift-detection events.
	NSManager = "[manager] "
)

// IsNil reports whether l is nil or a typed-nil interface value.
//
//	var l *DefaultLogger = nil
//	var iface Logger = l // iface != nil, but the underlying pointer is
func IsNil(l Logger) bool {
	if l == nil {
		return true
	}
	v := reflect.ValueOf(l)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// OrDefault returns l if it is valid, otherwise a WARN-level default logger.
func OrDefault(l Logger) Logger {
	if IsNil(l) {
		return NewDefaultLogger(LevelWarn)
	}
	return l
}
