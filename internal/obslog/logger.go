// Package obslog wraps go.uber.org/zap into the structured-logging shape
// the rest of the engine depends on, grounded on the teacher's
// internal/errors/logging.go StructuredLogger (component-scoped loggers,
// error-kind-aware log level selection).
package obslog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agentmem/internal/apperr"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	z *zap.Logger
}

// New builds a production JSON logger unless dev is true, in which case a
// human-readable console logger is used — the same toggle shape as the
// teacher's logging setup keyed off environment.
func New(dev bool) (*Logger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// For returns a child logger scoped to a component name, mirroring the
// teacher's per-component logger convention.
func (l *Logger) For(component string) *Logger {
	return &Logger{z: l.z.With(zap.String("component", component))}
}

func (l *Logger) Sync() error { return l.z.Sync() }

// Raw exposes the underlying *zap.Logger for collaborators (e.g.
// internal/httpapi's chi middleware) that take a plain zap logger rather
// than this package's error-kind-aware wrapper.
func (l *Logger) Raw() *zap.Logger { return l.z }

func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }

// Error logs err at a level selected by its apperr.Kind: Invalid/
// NotSupported are client-caused and logged at warn; Transient/Overflow/
// Budget are operational and logged at warn; Permanent
// is logged at error. Unrecognized error types default to error.
func (l *Logger) Error(msg string, err error, fields ...zap.Field) {
	level := levelFor(err)
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	if ce := l.z.Check(level, msg); ce != nil {
		ce.Write(allFields...)
	}
}

func levelFor(err error) zapcore.Level {
	switch {
	case apperr.IsInvalid(err), apperr.IsNotSupported(err):
		return zapcore.WarnLevel
	case apperr.IsTransient(err), apperr.IsOverflow(err), apperr.IsBudget(err):
		return zapcore.WarnLevel
	case apperr.IsPermanent(err):
		return zapcore.ErrorLevel
	default:
		return zapcore.ErrorLevel
	}
}
