package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Deepreo/zeit/config"
	"github.com/Deepreo/zeit/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zeit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "real", cfg.Clock.Kind)
	assert.Equal(t, time.Second, cfg.Clock.Stub.TickSize)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "zeit.schedule.", cfg.Events.TopicPrefix)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Server.Features.HealthCheck.Enabled)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Auth.JWT.Expiration)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
clock:
  kind: stub
  stub:
    start: 2024-01-02T03:04:05Z
    tick_size: 250ms
    implicit_tick: true
events:
  enabled: true
  topic_prefix: jobs.
server:
  enabled: true
  port: "9000"
  features:
    proxy:
      enabled: true
      trusted_proxies: [10.0.0.1, 10.0.0.2]
auth:
  enabled: true
  jwt:
    secret_key: 0123456789abcdef0123456789abcdef
    expiration: 1h
scheduler:
  tracing: true
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "stub", cfg.Clock.Kind)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), cfg.Clock.Stub.Start.UTC())
	assert.Equal(t, 250*time.Millisecond, cfg.Clock.Stub.TickSize)
	assert.True(t, cfg.Clock.Stub.ImplicitTick)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "jobs.", cfg.Events.TopicPrefix)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Server.Features.Proxy.TrustedProxies)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, time.Hour, cfg.Auth.JWT.Expiration)
	assert.True(t, cfg.Scheduler.Tracing)
	assert.False(t, cfg.Scheduler.Logging)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("ZEIT_CLOCK_KIND", "gocron")
	t.Setenv("ZEIT_CLOCK_LOCATION", "Europe/Istanbul")
	t.Setenv("ZEIT_SERVER_PORT", "7070")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "gocron", cfg.Clock.Kind)
	assert.Equal(t, "Europe/Istanbul", cfg.Clock.Location)
	assert.Equal(t, "7070", cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"clock kind", "clock:\n  kind: sundial\n"},
		{"log level", "log:\n  level: loud\n"},
		{"log format", "log:\n  format: xml\n"},
		{"auth without secret", "auth:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Equal(t, errors.ERR_CONFIGURATION, errors.GetLevel(err))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := config.LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "schedule_id", "abc")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"schedule_id":"abc"`)
}
