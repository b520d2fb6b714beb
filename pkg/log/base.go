package log

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// core is the state shared by a logger and everything derived from it.
type core struct {
	level      atomic.Int32
	formatter  Formatter
	outputs    []Output
	redactions map[string]struct{}
	sampler    *sampler
}

func (c *core) enabled(level Level) bool { return Level(c.level.Load()) <= level }

func (l *BaseLogger) log(level Level, msg string, attrs []slog.Attr) {
	if !l.core.enabled(level) {
		return
	}
	// skip runtime.Callers, log and the exported level method
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.slogLogger.Handler().Handle(context.Background(), r)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.log(DebugLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.log(InfoLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.log(WarnLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.log(ErrorLevel, msg, argsToAttrs(args))
}

func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &BaseLogger{core: l.core, slogLogger: l.slogLogger.With(attrsToAny(attrsFromFieldSlice(fields))...)}
}

func (l *BaseLogger) WithError(err error) Logger { return l.With(Err(err)) }

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	m := ContextExtractor(ctx)
	if len(m) == 0 {
		return l
	}
	return &BaseLogger{core: l.core, slogLogger: l.slogLogger.With(attrsToAny(attrsFromMap(m))...)}
}

func (l *BaseLogger) WithComponent(component string) Logger { return l.With(Component(component)) }

func (l *BaseLogger) SetLevel(level Level) { l.core.level.Store(int32(level)) }

func (l *BaseLogger) GetLevel() Level { return Level(l.core.level.Load()) }

// Close closes every output. Derived loggers share outputs, so close only the
// root logger.
func (l *BaseLogger) Close() error {
	var first error
	for _, out := range l.core.outputs {
		if err := out.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Slog returns the slog.Logger backing l.
func (l *BaseLogger) Slog() *slog.Logger { return l.slogLogger }
