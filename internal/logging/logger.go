// Package logging owns the process-wide zap logger for the HeftCoder server.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	once   sync.Once
)

// Options control logger construction.
type Options struct {
	Environment string // "production" selects the JSON encoder
	Level       string // debug, info, warn, error
}

// Init builds the global logger from the environment. Safe to call multiple
// times; only the first call has effect.
func Init() {
	InitWith(Options{
		Environment: os.Getenv("ENVIRONMENT"),
		Level:       os.Getenv("LOG_LEVEL"),
	})
}

// InitWith builds the global logger from explicit options.
func InitWith(opts Options) {
	once.Do(func() {
		l, err := build(opts)
		if err != nil {
			l = zap.NewNop()
		}
		Replace(l)
	})
}

func build(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Environment == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	return cfg.Build()
}

// Replace swaps the global logger. Tests use it to install zaptest or
// observer loggers.
func Replace(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// L returns the global structured logger.
func L() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		Init()
		mu.RLock()
		l = logger
		mu.RUnlock()
	}
	return l
}

// S returns the global sugared logger (printf-style)
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Sync flushes any buffered log entries. Call before app exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil {
		_ = logger.Sync()
	}
}

// WithContext returns a logger with additional structured fields.
func WithContext(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Named returns a child logger for a component.
func Named(component string) *zap.Logger {
	return L().Named(component)
}
