package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080", cfg.WSBaseURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.DriftThreshold)
	assert.Equal(t, 5*time.Second, cfg.MaxNetworkDelay)
	assert.Equal(t, 5*time.Second, cfg.SinkTimeout)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("GROUPSYNC_WS_BASE_URL", "https://sync.example.com")
	t.Setenv("GROUPSYNC_GROUP_ID", "G1")
	t.Setenv("GROUPSYNC_TOKEN", "T")
	t.Setenv("GROUPSYNC_DRIFT_THRESHOLD", "750ms")
	t.Setenv("GROUPSYNC_RECONNECT", "false")
	t.Setenv("GROUPSYNC_RECONNECT_MAX_ATTEMPTS", "0")

	cfg, err := Load(missingEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "G1", cfg.GroupID)
	assert.Equal(t, 750*time.Millisecond, cfg.DriftThreshold)
	assert.False(t, cfg.Reconnect.Enabled)
	assert.Zero(t, cfg.Reconnect.MaxAttempts)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "wss://sync.example.com", cfg.WSBaseURL, "normalized")
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GROUPSYNC_LISTEN_ADDR=:9999\nGROUPSYNC_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("GROUPSYNC_LISTEN_ADDR")
		os.Unsetenv("GROUPSYNC_LOG_LEVEL")
	})
	// Already-set variables win over the file.
	t.Setenv("GROUPSYNC_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("GROUPSYNC_SINK_TIMEOUT", "soon")
	t.Setenv("GROUPSYNC_RECONNECT_MAX_ATTEMPTS", "many")

	_, err := Load(missingEnvFile(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GROUPSYNC_SINK_TIMEOUT")
	assert.Contains(t, err.Error(), "GROUPSYNC_RECONNECT_MAX_ATTEMPTS")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"scheme", func(c *Config) { c.WSBaseURL = "ftp://x" }},
		{"group without token", func(c *Config) { c.GroupID = "G1" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"drift", func(c *Config) { c.DriftThreshold = 0 }},
		{"delay", func(c *Config) { c.MaxNetworkDelay = -time.Second }},
		{"sink timeout", func(c *Config) { c.SinkTimeout = 0 }},
		{"backoff", func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
