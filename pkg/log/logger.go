package log

import (
	"context"
	"log/slog"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Context keys copied into log entries by WithContext.
const (
	RequestIDKey = "request_id"
	ComponentKey = "component"
	OperationKey = "operation"
)

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
}

// Logger is the leveled, structured logging interface.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// Key-value variants: Infof("msg", "k1", v1, "k2", v2).
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})

	With(fields ...Field) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter turns an entry into bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives formatted entries.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// LoggerOption configures a logger.
type LoggerOption func(*BaseLogger)

// BaseLogger implements Logger. Loggers derived with With share the level,
// formatter and outputs of their parent.
type BaseLogger struct {
	core       *core
	slogLogger *slog.Logger
}

// ContextExtractor pulls the well-known keys out of ctx.
func ContextExtractor(ctx context.Context) Fields {
	fields := Fields{}
	if ctx == nil {
		return fields
	}
	for _, k := range []string{RequestIDKey, ComponentKey, OperationKey} {
		if v := ctx.Value(k); v != nil {
			fields[k] = v
		}
	}
	return fields
}

// NewLogger creates a new logger with the given options. The defaults are
// InfoLevel, JSON formatting and a console output.
func NewLogger(options ...LoggerOption) Logger {
	l := &BaseLogger{core: &core{formatter: &JSONFormatter{}}}
	l.core.level.Store(int32(InfoLevel))
	for _, option := range options {
		option(l)
	}
	if len(l.core.outputs) == 0 {
		l.core.outputs = append(l.core.outputs, NewConsoleOutput())
	}
	l.slogLogger = slog.New(newBridgeHandler(l.core))
	return l
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.core.level.Store(int32(level)) }
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.core.formatter = formatter }
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.core.outputs = append(l.core.outputs, output) }
}

// WithRedactions replaces the values of the given keys with "[REDACTED]".
func WithRedactions(keys ...string) LoggerOption {
	return func(l *BaseLogger) {
		if len(keys) == 0 {
			return
		}
		l.core.redactions = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			l.core.redactions[k] = struct{}{}
		}
	}
}

// WithSampling keeps the first initial occurrences of each message and then
// every thereafter-th one.
func WithSampling(initial, thereafter int) LoggerOption {
	return func(l *BaseLogger) {
		if thereafter > 0 {
			l.core.sampler = newSampler(initial, thereafter)
		}
	}
}
