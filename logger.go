package warden

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	ErrorLevel
)

type Logger interface {
	Debug(v ...any)
	Debugf(format string, a ...any)
	Info(v ...any)
	Infof(format string, a ...any)
	Error(v ...any)
	Errorf(format string, a ...any)
	SetLogLevel(level LogLevel)
	With(args ...any) Logger
}

// LogFileConfig enables a rotating log file next to stdout.
type LogFileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

type slogLogger struct {
	logger   *slog.Logger
	level    *slog.LevelVar
	logLevel LogLevel
}

// NewLogger builds a slog backed Logger writing to stdout. Output is text
// unless LOG_FORMAT=json.
func NewLogger(logLevelStr string) Logger {
	return newSlogLogger(logLevelStr, os.Stdout, isTerminal())
}

// NewFileLogger behaves like NewLogger and additionally writes JSON lines to
// a lumberjack rotated file. An empty path yields a stdout-only logger.
func NewFileLogger(logLevelStr string, file LogFileConfig) Logger {
	if strings.TrimSpace(file.Path) == "" {
		return NewLogger(logLevelStr)
	}
	rotated := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}
	return newSlogLogger(logLevelStr, io.MultiWriter(os.Stdout, rotated), false)
}

func newSlogLogger(logLevelStr string, out io.Writer, text bool) Logger {
	level := toValidLevel(logLevelStr)
	handlerLevel := new(slog.LevelVar)
	handlerLevel.Set(slogLevel(level))
	opts := &slog.HandlerOptions{Level: handlerLevel}

	var handler slog.Handler
	if text {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &slogLogger{
		logger:   slog.New(handler),
		level:    handlerLevel,
		logLevel: level,
	}
}

func (l *slogLogger) Debug(v ...any) {
	if l.logLevel <= DebugLevel {
		msg, attrs := normalizeArgs(v...)
		l.logger.Debug(msg, attrs...)
	}
}

func (l *slogLogger) Debugf(format string, a ...any) {
	if l.logLevel <= DebugLevel {
		l.logger.Debug(fmt.Sprintf(format, a...))
	}
}

func (l *slogLogger) Info(v ...any) {
	if l.logLevel <= InfoLevel {
		msg, attrs := normalizeArgs(v...)
		l.logger.Info(msg, attrs...)
	}
}

func (l *slogLogger) Infof(format string, a ...any) {
	if l.logLevel <= InfoLevel {
		l.logger.Info(fmt.Sprintf(format, a...))
	}
}

func (l *slogLogger) Error(v ...any) {
	if l.logLevel <= ErrorLevel {
		msg, attrs := normalizeArgs(v...)
		l.logger.Error(msg, attrs...)
	}
}

func (l *slogLogger) Errorf(format string, a ...any) {
	if l.logLevel <= ErrorLevel {
		l.logger.Error(fmt.Sprintf(format, a...))
	}
}

// SetLogLevel changes the level of this logger and of the handler it shares
// with loggers derived through With.
func (l *slogLogger) SetLogLevel(level LogLevel) {
	l.logLevel = level
	if l.level != nil {
		l.level.Set(slogLevel(level))
	}
}

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{
		logger:   l.logger.With(args...),
		level:    l.level,
		logLevel: l.logLevel,
	}
}

type noopLogger struct{}

func (noopLogger) Debug(v ...any)                 {}
func (noopLogger) Debugf(format string, a ...any) {}
func (noopLogger) Info(v ...any)                  {}
func (noopLogger) Infof(format string, a ...any)  {}
func (noopLogger) Error(v ...any)                 {}
func (noopLogger) Errorf(format string, a ...any) {}
func (noopLogger) SetLogLevel(level LogLevel)     {}
func (noopLogger) With(args ...any) Logger        { return noopLogger{} }

func NewNoopLogger() Logger {
	return noopLogger{}
}

func toValidLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "dbg":
		return DebugLevel
	case "error", "err":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal() bool {
	return os.Getenv("LOG_FORMAT") != "json"
}

// NewRequestLogger returns a chi RequestLogger middleware emitting structured
// request lifecycle logs through logger.
func NewRequestLogger(logger Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = NewNoopLogger()
	}
	return chimiddleware.RequestLogger(&structuredLogFormatter{logger: logger})
}

type structuredLogFormatter struct {
	logger Logger
}

func (f *structuredLogFormatter) NewLogEntry(r *http.Request) chimiddleware.LogEntry {
	entryLogger := f.logger.With(
		"request_id", RequestIDFrom(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
	entryLogger.Debug("request started",
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
	)
	return &structuredLogEntry{logger: entryLogger, req: r}
}

type structuredLogEntry struct {
	logger Logger
	req    *http.Request
}

func (e *structuredLogEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, _ interface{}) {
	args := []any{
		"status", status,
		"bytes", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
		"referer", e.req.Referer(),
	}
	if loc := header.Get("Location"); loc != "" {
		args = append(args, "location", loc)
	}
	e.logger.Info(append([]any{"request completed"}, args...)...)
}

func (e *structuredLogEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error("request panic",
		"panic", fmt.Sprint(v),
		"stack", string(stack),
	)
}

func normalizeArgs(args ...any) (string, []any) {
	if len(args) == 0 {
		return "", nil
	}
	msg := fmt.Sprint(args[0])
	rest := args[1:]
	if len(rest) == 0 {
		return msg, nil
	}
	if attrs := toAttrsIfPossible(rest); attrs != nil {
		return msg, attrs
	}
	if len(rest)%2 != 0 {
		return fmt.Sprint(args...), nil
	}
	return msg, rest
}

func toAttrsIfPossible(args []any) []any {
	attrs := make([]any, len(args))
	for i, arg := range args {
		attr, ok := arg.(slog.Attr)
		if !ok {
			return nil
		}
		attrs[i] = attr
	}
	return attrs
}
