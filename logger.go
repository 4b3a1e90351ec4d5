package phantomheap

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with phantomheap-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses the default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogPut logs a put operation.
func (l *Logger) LogPut(id uint64, size int, err error) {
	if err != nil {
		l.Error("put failed",
			"size", size,
			"error", err,
		)
	} else {
		l.Debug("put completed",
			"id", id,
			"size", size,
		)
	}
}

// LogGet logs a get operation.
func (l *Logger) LogGet(id uint64, size int, err error) {
	if err != nil {
		l.Debug("get missed",
			"id", id,
			"error", err,
		)
	} else {
		l.Debug("get completed",
			"id", id,
			"size", size,
		)
	}
}

// LogRemove logs a remove operation.
func (l *Logger) LogRemove(id uint64) {
	l.Debug("remove completed",
		"id", id,
	)
}

// LogEviction logs the eviction of a single victim.
func (l *Logger) LogEviction(id uint64, size uint32) {
	l.Debug("entry evicted",
		"id", id,
		"size", size,
	)
}

// LogCleanup logs one cleanup tick.
func (l *Logger) LogCleanup(evicted int, used, capacity uint64) {
	if evicted > 0 {
		l.Info("cleanup tick completed",
			"evicted", evicted,
			"used", used,
			"capacity", capacity,
		)
	}
}

// LogClose logs heap teardown.
func (l *Logger) LogClose(err error) {
	if err != nil {
		l.Error("close failed",
			"error", err,
		)
	} else {
		l.Info("heap closed")
	}
}
