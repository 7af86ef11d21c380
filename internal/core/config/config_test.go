package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies that default values are used when env vars are missing.
func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("APP_ENV")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("SERVER_PORT")

	os.Setenv("SYNC_BASE_URL", "https://routes.test")
	defer os.Unsetenv("SYNC_BASE_URL")

	cfg, err := Load(".")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.ServerPort)

	assert.Equal(t, 50.0, cfg.Tracking.AccuracyCeilingMeters)
	assert.Equal(t, 2*time.Second, cfg.Tracking.ClockSkew())

	assert.Equal(t, 100.0, cfg.Completion.RadiusMeters)
	assert.Equal(t, 5*time.Minute, cfg.Completion.MinElapsed())
	assert.Equal(t, 0.5, cfg.Completion.MinDistanceKm)
	assert.Equal(t, time.Duration(0), cfg.Completion.AutoConfirm())

	assert.Equal(t, "sqlite", cfg.Queue.Backend)
	assert.Equal(t, "route-tracker.db", cfg.Queue.SQLitePath)

	assert.Equal(t, 30*time.Second, cfg.Sync.Interval())
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 72*time.Hour, cfg.Sync.Retention())
	assert.Equal(t, 15*time.Second, cfg.Sync.HTTPTimeout())
}

// TestLoad_EnvVars verifies that environment variables override defaults.
func TestLoad_EnvVars(t *testing.T) {
	os.Setenv("APP_ENV", "production")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("SERVER_PORT", "9090")
	os.Setenv("SYNC_BASE_URL", "https://routes.example.com")
	os.Setenv("GPS_ACCURACY_CEILING_M", "25")
	os.Setenv("COMPLETION_AUTO_CONFIRM_SECONDS", "45")
	os.Setenv("QUEUE_BACKEND", "redis")
	os.Setenv("SYNC_MAX_ATTEMPTS", "8")
	defer func() {
		os.Unsetenv("APP_ENV")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("SYNC_BASE_URL")
		os.Unsetenv("GPS_ACCURACY_CEILING_M")
		os.Unsetenv("COMPLETION_AUTO_CONFIRM_SECONDS")
		os.Unsetenv("QUEUE_BACKEND")
		os.Unsetenv("SYNC_MAX_ATTEMPTS")
	}()

	cfg, err := Load(".")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "https://routes.example.com", cfg.Sync.BaseURL)
	assert.Equal(t, 25.0, cfg.Tracking.AccuracyCeilingMeters)
	assert.Equal(t, 45*time.Second, cfg.Completion.AutoConfirm())
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, 8, cfg.Sync.MaxAttempts)
}

// TestLoad_MissingRequired verifies that a missing required value fails loading.
func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("SYNC_BASE_URL")

	cfg, err := Load(t.TempDir())
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_BASE_URL")
}
