package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, "./data", cfg.Storage.LocalPath)
	assert.Equal(t, SessionMemory, cfg.Session.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 2*time.Minute, cfg.Session.LockTTL)
	assert.Equal(t, 30*time.Minute, cfg.Poll.Interval)
	assert.Equal(t, 2*time.Second, cfg.Poll.Pacing)
	assert.Equal(t, 30*time.Second, cfg.Poll.FetchTimeout)
	assert.EqualValues(t, 3, cfg.Poll.PersistAttempts)
	assert.True(t, cfg.Poll.OnStart)
	assert.InDelta(t, 5, cfg.Tracking.DefaultThresholdPercent, 1e-9)
	assert.Equal(t, NotifyLog, cfg.Notify.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `
server:
  port: "9090"
storage:
  backend: postgres
  database_dsn: "postgres://u:p@localhost:5432/carwatch"
poll:
  interval: 10m
  pacing: 500ms
tracking:
  default_threshold_percent: 7.5
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("POLL_INTERVAL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, StoragePostgres, cfg.Storage.Backend)
	assert.Equal(t, time.Hour, cfg.Poll.Interval, "env overrides the file")
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Pacing)
	assert.InDelta(t, 7.5, cfg.Tracking.DefaultThresholdPercent, 1e-9)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err, "Load succeeded with a missing explicit CONFIG_PATH")
}

func validConfig() Config {
	return Config{
		Storage:  StorageConfig{Backend: StorageLocal, LocalPath: "./data"},
		Session:  SessionConfig{Backend: SessionMemory},
		Notify:   NotifyConfig{Backend: NotifyLog},
		Tracking: TrackingConfig{DefaultThresholdPercent: 5},
		Poll:     PollConfig{Interval: time.Minute, FetchTimeout: time.Second, PersistAttempts: 1},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, wantErr: "STORAGE_BUCKET"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Backend = StoragePostgres }, wantErr: "DATABASE_DSN"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: "unknown backend"},
		{name: "redis without addr", mutate: func(c *Config) { c.Session.Backend = SessionRedis }, wantErr: "REDIS_ADDR"},
		{
			name:   "redis with addr",
			mutate: func(c *Config) { c.Session.Backend = SessionRedis; c.Session.RedisAddr = "localhost:6379" },
		},
		{name: "webhook without url", mutate: func(c *Config) { c.Notify.Backend = NotifyWebhook }, wantErr: "NOTIFY_WEBHOOK_URL"},
		{
			name:    "webhook relative url",
			mutate:  func(c *Config) { c.Notify.Backend = NotifyWebhook; c.Notify.WebhookURL = "/hook" },
			wantErr: "NOTIFY_WEBHOOK_URL",
		},
		{name: "zero threshold", mutate: func(c *Config) { c.Tracking.DefaultThresholdPercent = 0 }, wantErr: "threshold"},
		{name: "zero persist attempts", mutate: func(c *Config) { c.Poll.PersistAttempts = 0 }, wantErr: "persist_attempts"},
		{name: "negative pacing", mutate: func(c *Config) { c.Poll.Pacing = -time.Second }, wantErr: "pacing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
