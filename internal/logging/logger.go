package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/pubsub/internal/errors"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the name of the log file created inside Options.Dir.
const FileName = "pubsub.log"

// Options configures NewLogger.
type Options struct {
	// Dir is the directory holding the log file. Empty means stderr.
	Dir string
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string
	// MaxSizeMB and MaxBackups control rotation of the log file.
	MaxSizeMB  int
	MaxBackups int
}

// Logger provides structured JSON logging with persistent attributes.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	closer io.Closer
	attrs  []slog.Attr
}

// NewLogger creates a Logger writing JSON lines to {Dir}/pubsub.log, rotated
// by size, or to stderr when Dir is empty.
func NewLogger(opts Options) (*Logger, error) {
	if opts.Dir == "" {
		return NewWriterLogger(os.Stderr, opts.Level), nil
	}

	rw, err := NewRotatingWriter(filepath.Join(opts.Dir, FileName), RotationConfig{
		MaxSizeMB:  opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWriterLogger(rw, opts.Level)
	l.closer = rw
	return l, nil
}

// NewWriterLogger creates a Logger that writes JSON lines to w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return &Logger{
		logger: slog.New(handler),
		attrs:  make([]slog.Attr, 0),
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
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

// WithScript returns a child Logger tagging every entry with the script name.
func (l *Logger) WithScript(name string) *Logger {
	return l.withAttr(slog.String("script", name))
}

// WithKey returns a child Logger tagging every entry with a registry key.
func (l *Logger) WithKey(key string) *Logger {
	return l.withAttr(slog.String("key", key))
}

// With returns a child Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	newAttrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	newAttrs = append(newAttrs, l.attrs...)
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		newAttrs = append(newAttrs, slog.Any(key, args[i+1]))
	}

	return &Logger{logger: l.logger, closer: l.closer, attrs: newAttrs}
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	newAttrs := make([]slog.Attr, len(l.attrs)+1)
	copy(newAttrs, l.attrs)
	newAttrs[len(l.attrs)] = attr

	return &Logger{logger: l.logger, closer: l.closer, attrs: newAttrs}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

// Log logs a message at an arbitrary level with optional key-value pairs.
func (l *Logger) Log(level slog.Level, msg string, args ...any) {
	l.log(level, msg, args...)
}

// LogError logs err with its error code at the level its severity maps to.
func (l *Logger) LogError(msg string, err error, args ...any) {
	if err == nil {
		return
	}
	all := append([]any{"error", err.Error(), "code", errors.Code(err)}, args...)
	l.log(LevelFor(err), msg, all...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	allArgs := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		allArgs = append(allArgs, attr.Key, attr.Value.Any())
	}
	allArgs = append(allArgs, args...)

	l.logger.Log(context.Background(), level, msg, allArgs...)
}

// Close flushes and closes the log file. Child loggers share the file, so
// only the root logger should be closed. A stderr logger is a no-op.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

// LevelFor maps the severity of err to a log level. Errors not defined by
// the errors package log at ERROR, a nil error at DEBUG.
func LevelFor(err error) slog.Level {
	switch errors.GetSeverity(err) {
	case errors.SeverityDebug:
		return slog.LevelDebug
	case errors.SeverityInfo:
		return slog.LevelInfo
	case errors.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// NopLogger returns a Logger that discards all log output.
// Useful for testing or when logging is disabled.
func NopLogger() *Logger {
	return NewWriterLogger(io.Discard, LevelError)
}

// ParseLevel normalizes a level string to one of the Level constants.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
