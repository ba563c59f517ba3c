package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New(Config{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level enabled")
	}
}

func TestNewUnknownLevelFallsBack(t *testing.T) {
	logger, err := New(Config{Level: "chatty", Format: "console"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected fallback to info level")
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("expected info level enabled")
	}
}
