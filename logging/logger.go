// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer AssistantLogger with contextual
// helpers (component, session, trace) and domain specific logging helpers
// for capability and model calls.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string to a LogLevel. Unknown values map to info.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used across the assistant.
// Arguments after msg are slog style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextLogger is implemented by loggers able to attach request scoped
// values (such as the active trace span) to every entry.
type ContextLogger interface {
	Logger
	WithContext(ctx context.Context) Logger
}

// WithContext returns l bound to ctx when l supports it, otherwise l itself.
func WithContext(l Logger, ctx context.Context) Logger {
	if cl, ok := l.(ContextLogger); ok {
		return cl.WithContext(ctx)
	}
	return l
}

// CallLogger is implemented by loggers with dedicated records for capability
// and model calls.
type CallLogger interface {
	LogToolCall(tool string, dur time.Duration, err error)
	LogLLMCall(model string, tokens int64, dur time.Duration, err error)
}

// ToolCall records a capability invocation on l.
func ToolCall(l Logger, tool string, dur time.Duration, err error) {
	if cl, ok := l.(CallLogger); ok {
		cl.LogToolCall(tool, dur, err)
		return
	}
	if err != nil {
		l.Error("tool.call.failed", "tool_name", tool, "duration", dur, "error", err.Error())
		return
	}
	l.Debug("tool.call.completed", "tool_name", tool, "duration", dur)
}

// LLMCall records a model call on l.
func LLMCall(l Logger, model string, tokens int64, dur time.Duration, err error) {
	if cl, ok := l.(CallLogger); ok {
		cl.LogLLMCall(model, tokens, dur, err)
		return
	}
	if err != nil {
		l.Error("llm.call.failed", "model", model, "duration", dur, "error", err.Error())
		return
	}
	l.Debug("llm.call.completed", "model", model, "token_count", tokens, "duration", dur)
}

// WithSession tags every entry written through l with an orchestration
// session id.
func WithSession(l Logger, sid string) Logger {
	if al, ok := l.(*AssistantLogger); ok {
		return al.WithSession(sid)
	}
	return &sessionLogger{next: l, sid: sid}
}

type sessionLogger struct {
	next Logger
	sid  string
}

func (l *sessionLogger) Debug(msg string, args ...any) {
	l.next.Debug(msg, append(args, "session_id", l.sid)...)
}

func (l *sessionLogger) Info(msg string, args ...any) {
	l.next.Info(msg, append(args, "session_id", l.sid)...)
}

func (l *sessionLogger) Warn(msg string, args ...any) {
	l.next.Warn(msg, append(args, "session_id", l.sid)...)
}

func (l *sessionLogger) Error(msg string, args ...any) {
	l.next.Error(msg, append(args, "session_id", l.sid)...)
}

func (l *sessionLogger) WithContext(ctx context.Context) Logger {
	return &sessionLogger{next: WithContext(l.next, ctx), sid: l.sid}
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// AssistantLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via With* methods.
type AssistantLogger struct {
	logger    *slog.Logger
	ctx       context.Context
	component string
	sessionID string
}

// LoggerConfig configures construction of an AssistantLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline text info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "text", Output: os.Stderr}
}

// NewLogger builds an AssistantLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *AssistantLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return &AssistantLogger{
		logger:    slog.New(&traceHandler{next: handler}),
		ctx:       context.Background(),
		component: cfg.Component,
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Slog exposes the underlying *slog.Logger.
func (l *AssistantLogger) Slog() *slog.Logger { return l.logger }

func (l *AssistantLogger) clone() *AssistantLogger {
	nl := *l
	return &nl
}

// WithComponent sets the logical component (agent, engine, server, etc.).
func (l *AssistantLogger) WithComponent(c string) *AssistantLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession attaches an orchestration session identifier.
func (l *AssistantLogger) WithSession(sid string) *AssistantLogger {
	nl := l.clone()
	nl.sessionID = sid
	return nl
}

// WithContext binds ctx so trace and span ids are attached to entries.
func (l *AssistantLogger) WithContext(ctx context.Context) Logger {
	nl := l.clone()
	nl.ctx = ctx
	return nl
}

func (l *AssistantLogger) log(level slog.Level, msg string, args ...any) {
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}
	if l.component != "" {
		args = append(args, "component", l.component)
	}
	if l.sessionID != "" {
		args = append(args, "session_id", l.sessionID)
	}
	l.logger.Log(ctx, level, msg, args...)
}

// Debug logs at debug level.
func (l *AssistantLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *AssistantLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *AssistantLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *AssistantLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogToolCall records execution details for a capability invocation.
func (l *AssistantLogger) LogToolCall(tool string, dur time.Duration, err error) {
	if err != nil {
		l.Error("tool.call.failed", "tool_name", tool, "duration", dur, "error", err.Error())
		return
	}
	l.Info("tool.call.completed", "tool_name", tool, "duration", dur)
}

// LogLLMCall records model call latency and token usage.
func (l *AssistantLogger) LogLLMCall(model string, tokens int64, dur time.Duration, err error) {
	if err != nil {
		l.Error("llm.call.failed", "model", model, "duration", dur, "error", err.Error())
		return
	}
	l.Info("llm.call.completed", "model", model, "token_count", tokens, "duration", dur)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// traceHandler decorates records with the ids of the span active in the
// record's context.
type traceHandler struct {
	next slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			record.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{next: h.next.WithGroup(name)}
}
