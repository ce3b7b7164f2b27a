package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(tb testing.TB, content string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "config.toml")
	require.NoError(tb, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	for _, name := range Presets() {
		p, err := getPreset(name)
		require.NoError(t, err)
		require.NoError(t, p.Validate(), name)
		require.Equal(t, name, p.Preset)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[main]
data-dir = "/var/lib/nostrsync"
db-connections = 4

[logging]
log-encoder = "json"
level = "debug"

[sync]
timeout = "90s"
wait-slice = "5s"
id-list-threshold = 64
frame-size-limit = 65536

[relay]
listen = "0.0.0.0:8080"
max-sessions = 4

[metrics]
enabled = true
push-url = "http://gateway:9091"
push-period = "30s"
`)
	cfg := DefaultConfig()
	require.NoError(t, LoadConfig(&cfg, "", path))
	require.NoError(t, cfg.Validate())

	require.Equal(t, "/var/lib/nostrsync", cfg.DataDir)
	require.Equal(t, "/var/lib/nostrsync/events.sql", cfg.DatabasePath())
	require.Equal(t, 4, cfg.DatabaseConnections)
	require.Equal(t, JSONLogEncoder, cfg.Logging.Encoder)
	require.Equal(t, zapcore.DebugLevel, cfg.Logging.Level)
	require.Equal(t, 90*time.Second, cfg.Sync.Timeout)
	require.Equal(t, 5*time.Second, cfg.Sync.WaitSlice)
	require.Equal(t, 64, cfg.Sync.IDListThreshold)
	require.Equal(t, 65536, cfg.Sync.FrameSizeLimit)
	require.Equal(t, "0.0.0.0:8080", cfg.Relay.Listen)
	require.Equal(t, 4, cfg.Relay.MaxSessions)
	// untouched values keep the defaults
	require.Equal(t, DefaultConfig().Relay.MaxRecords, cfg.Relay.MaxRecords)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "http://gateway:9091", cfg.Metrics.URL)
	require.Equal(t, 30*time.Second, cfg.Metrics.Period)
}

func TestLoadConfigPreset(t *testing.T) {
	t.Run("argument", func(t *testing.T) {
		cfg := DefaultConfig()
		require.NoError(t, LoadConfig(&cfg, "public", ""))
		require.Equal(t, "public", cfg.Preset)
		require.Equal(t, JSONLogEncoder, cfg.Logging.Encoder)
	})
	t.Run("file overrides preset", func(t *testing.T) {
		path := writeConfig(t, `
[main]
preset = "local"

[sync]
timeout = "3s"
`)
		cfg := DefaultConfig()
		require.NoError(t, LoadConfig(&cfg, "", path))
		require.Equal(t, "local", cfg.Preset)
		require.Equal(t, zapcore.DebugLevel, cfg.Logging.Level)
		require.Equal(t, 3*time.Second, cfg.Sync.Timeout)
	})
	t.Run("unknown", func(t *testing.T) {
		cfg := DefaultConfig()
		require.ErrorContains(t, LoadConfig(&cfg, "nope", ""), "preset nope is not registered")
	})
}

func TestLoadConfigErrors(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorContains(t, LoadConfig(&cfg, "", filepath.Join(t.TempDir(), "missing.toml")),
		"read config file")

	path := writeConfig(t, `
[relay]
no-such-key = 1
`)
	require.ErrorContains(t, LoadConfig(&cfg, "", path), "unmarshal config")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = ""
	cfg.Logging.Encoder = "xml"
	cfg.Sync.IDListThreshold = 0
	cfg.Relay.PingInterval = 0
	err := cfg.Validate()
	require.ErrorContains(t, err, "data-dir")
	require.ErrorContains(t, err, "log-encoder")
	require.ErrorContains(t, err, "id-list-threshold")
	require.ErrorContains(t, err, "ping-interval")
}
