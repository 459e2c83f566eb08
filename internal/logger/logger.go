package logger

import (
	"os"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init builds the process logger. Development mode switches to the
// console encoder and enables debug output.
func Init(level string, development bool) error {

	lvl := parseLevel(level)

	var (
		l   *zap.Logger
		err error
	)

	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		l, err = cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			return err
		}
	} else {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl)
		l = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	current.Store(l)

	return nil

}

// Set replaces the process logger. Tests use it with zaptest or observer cores.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

func L() *zap.Logger {
	return current.Load()
}

func Sync() {
	_ = current.Load().Sync()
}

func Debug(msg string, fields map[string]any) {
	current.Load().Debug(msg, toZap(fields)...)
}

func Info(msg string, fields map[string]any) {
	current.Load().Info(msg, toZap(fields)...)
}

func Warn(msg string, fields map[string]any) {
	current.Load().Warn(msg, toZap(fields)...)
}

func Error(msg string, fields map[string]any) {
	current.Load().Error(msg, toZap(fields)...)
}

func Fatal(msg string, fields map[string]any) {
	current.Load().Fatal(msg, toZap(fields)...)
}

func toZap(fields map[string]any) []zap.Field {

	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}

	return out

}

func parseLevel(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
