package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     *charmlog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339Nano,
			Level:           charmlog.InfoLevel,
		})
	})
}

// ParseLevel accepts debug, info, warn(ing) and error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		logger.SetLevel(charmlog.DebugLevel)
	case LevelWarn:
		logger.SetLevel(charmlog.WarnLevel)
	case LevelError:
		logger.SetLevel(charmlog.ErrorLevel)
	default:
		logger.SetLevel(charmlog.InfoLevel)
	}
}

// SetOutput redirects log output. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	initLogger()
	logger.SetOutput(w)
}

// OpenFile appends log output to the file at path in addition to stderr.
// The returned closer restores stderr-only output and closes the file.
func OpenFile(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	SetOutput(io.MultiWriter(os.Stderr, f))
	return closerFunc(func() error {
		SetOutput(os.Stderr)
		return f.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func Debug(msg string, kv ...any) {
	std().Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	std().Info(msg, kv...)
}

func Warn(msg string, kv ...any) {
	std().Warn(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	std().Error(msg, err, kv...)
}

// Logger is a logger bound to a set of fields, usually a request's trace id.
type Logger struct {
	l *charmlog.Logger
}

func std() Logger {
	initLogger()
	return Logger{l: logger}
}

func (lg Logger) Debug(msg string, kv ...any) {
	lg.l.Debug(msg, kv...)
}

func (lg Logger) Info(msg string, kv ...any) {
	lg.l.Info(msg, kv...)
}

func (lg Logger) Warn(msg string, kv ...any) {
	lg.l.Warn(msg, kv...)
}

func (lg Logger) Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	lg.l.Error(msg, extended...)
}

type traceKey struct{}

// WithTraceID returns ctx carrying the given trace id.
func WithTraceID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace id stored in ctx, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// Ctx returns a logger that stamps every line with the trace id from ctx.
func Ctx(ctx context.Context) Logger {
	lg := std()
	if id := TraceID(ctx); id != "" {
		return Logger{l: lg.l.With("trace_id", id)}
	}
	return lg
}
