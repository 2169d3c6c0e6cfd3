// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps zap into the small structured-logging contract
// used throughout amoskys: package-level Info/Warn/Error/Debug calls and
// per-component child loggers via WithComponent.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the root logger is constructed.
type Config struct {
	// Format is "json" (production) or "console" (development). Defaults
	// to "json" unless AMOSKYS_LOG_FORMAT overrides it.
	Format string
	// Level is one of debug/info/warn/error. Defaults to "info".
	Level string
}

// DefaultConfig reads AMOSKYS_LOG_FORMAT / AMOSKYS_LOG_LEVEL, falling back
// to json/info.
func DefaultConfig() Config {
	cfg := Config{Format: "json", Level: "info"}
	if v := os.Getenv("AMOSKYS_LOG_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("AMOSKYS_LOG_LEVEL"); v != "" {
		cfg.Level = v
	}
	return cfg
}

// Logger is a thin wrapper around a zap.SugaredLogger so call sites can
// use key/value pairs without importing zap directly.
type Logger struct {
	s *zap.SugaredLogger
}

func (l *Logger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

// WithComponent returns a child logger tagging every line with
// component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{s: l.s.With("component", name)}
}

// With returns a child logger with additional structured fields attached.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	base, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{s: base.Sugar()}
}

var (
	mu      sync.RWMutex
	root    = New(DefaultConfig())
)

// SetDefault replaces the package-level root logger. Intended for use by
// cmd/ main functions that build a Config from flags/env.
func SetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// WithComponent returns a child of the package-level default logger.
func WithComponent(name string) *Logger { return current().WithComponent(name) }

func Debug(msg string, kv ...any) { current().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { current().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { current().Warn(msg, kv...) }
func Error(msg string, kv ...any) { current().Error(msg, kv...) }
