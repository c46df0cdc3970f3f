// Package logging wraps zap to provide leveled, structured logging for the
// gateway. Packages log through a default console logger until
// InitLoggerFromEnv installs the configured one at startup, so init-time and
// test logging never panic on an uninitialized logger.
package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = newDefaultLogger()
)

func newDefaultLogger() *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zapcore.InfoLevel,
	)
	return zap.New(core).Sugar()
}

// InitLoggerFromEnv builds the process logger from LOG_LEVEL (debug, info,
// warn, error; default info) and LOG_FORMAT (json or console; default json)
// and installs it globally. Returns the underlying zap.Logger so callers can
// defer Sync.
func InitLoggerFromEnv() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.Set(strings.ToLower(raw)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", raw, err)
		}
	}

	var cfg zap.Config
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	logger = base.Sugar()
	mu.Unlock()

	return base, nil
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	return get().Sync()
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) {
	get().Infof(format, args...)
}

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

// Fatalf logs a formatted message at fatal level, then exits.
func Fatalf(format string, args ...interface{}) {
	get().Fatalf(format, args...)
}

// LogEvent emits a structured event with the given name and fields.
// Keys are sorted so event output is stable across runs.
func LogEvent(event string, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		kvs = append(kvs, k, fields[k])
	}
	get().Infow(event, kvs...)
}
