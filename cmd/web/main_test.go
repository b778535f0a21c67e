package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/instwave/digest-web/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
		{"uppercase not handled", "DEBUG", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.level))
		})
	}
}

func TestGetEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		secret   string
		expected string
	}{
		{"development when debug", "debug", "any-secret", "development"},
		{"production when secret changed", "info", "a-real-production-secret", "production"},
		{"unknown with the dev secret", "info", "dev-secret-change-in-production", "unknown"},
		{"development takes priority", "debug", "a-real-production-secret", "development"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Log.Level = tt.logLevel
			cfg.Session.Secret = tt.secret
			assert.Equal(t, tt.expected, getEnvironment(cfg))
		})
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		format string
		level  string
	}{
		{"json", "info"},
		{"text", "debug"},
		{"", "warn"},
		{"json", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.level, func(t *testing.T) {
			previous := slog.Default()
			t.Cleanup(func() { slog.SetDefault(previous) })

			cfg := config.DefaultConfig()
			cfg.Log.Level = tt.level
			cfg.Log.Format = tt.format

			logger := setupLogger(cfg)

			assert.NotNil(t, logger)
			assert.Same(t, logger, slog.Default())
			assert.True(t, logger.Enabled(context.Background(), parseLogLevel(tt.level)))
			assert.False(t, logger.Enabled(context.Background(), parseLogLevel(tt.level)-1))
		})
	}
}

func TestGracefulShutdownSleepConstant(t *testing.T) {
	assert.Equal(t, int64(100), gracefulShutdownSleep.Milliseconds())
}
