// Package logging provides structured logging with zap.
//
// The CLI initializes the logger once from config; library packages
// receive a *zap.Logger through their Options instead of touching the
// global, so they stay usable with a no-op logger in tests.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// New builds a logger from config. An unknown level falls back to info
// rather than failing: a typo in a log setting should never stop a
// download.
func New(cfg Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
	} else {
		// Progress rendering owns stdout; logs go to stderr.
		zc.OutputPaths = []string{"stderr"}
	}

	return zc.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}
