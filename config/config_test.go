package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 900*time.Millisecond, cfg.ConfirmationDelay)
	assert.Equal(t, 8, cfg.AvailabilityConcurrency)
	assert.Equal(t, 0.6, cfg.BreakerFailureRatio)
	assert.False(t, cfg.RealtimeEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TICKET_API_URL", "https://tickets.example.com")
	t.Setenv("CONFIRMATION_DELAY", "2s")
	t.Setenv("AVAILABILITY_CONCURRENCY", "3")
	t.Setenv("PUBNUB_SUBSCRIBE_KEY", "sub-c-123")
	t.Setenv("HTTP_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()

	assert.Equal(t, "https://tickets.example.com", cfg.APIBaseURL)
	assert.Equal(t, 2*time.Second, cfg.ConfirmationDelay)
	assert.Equal(t, 3, cfg.AvailabilityConcurrency)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.RealtimeEnabled())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SESSION_PROFILE=work\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SESSION_PROFILE") })

	cfg := LoadConfig()

	assert.Equal(t, "work", cfg.SessionProfile)
}

func TestConfig_Validate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad url", func(c *Config) { c.APIBaseURL = "::not a url" }},
		{"zero concurrency", func(c *Config) { c.AvailabilityConcurrency = 0 }},
		{"ratio above one", func(c *Config) { c.BreakerFailureRatio = 1.5 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"metrics without port", func(c *Config) { c.EnableMetrics = true; c.MetricsPort = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
