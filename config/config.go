// Package config loads the service configuration from YAML and the environment.
package config

import "time"

// Storage backends.
const (
	StorageLocal    = "local"
	StorageGCS      = "gcs"
	StoragePostgres = "postgres"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Notification backends.
const (
	NotifyLog     = "log"
	NotifyWebhook = "webhook"
)

// Config is the root application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Session  SessionConfig  `yaml:"session"`
	Poll     PollConfig     `yaml:"poll"`
	Tracking TrackingConfig `yaml:"tracking"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `yaml:"port"             env:"PORT"                    env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"90s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// StorageConfig selects and configures the profile backend.
type StorageConfig struct {
	Backend         string `yaml:"backend"          env:"STORAGE_BACKEND"         env-default:"local"`
	LocalPath       string `yaml:"local_path"       env:"LOCAL_STORAGE"           env-default:"./data"`
	Bucket          string `yaml:"bucket"           env:"STORAGE_BUCKET"`
	CredentialsJSON string `yaml:"credentials_json" env:"GOOGLE_CREDENTIALS_JSON"`
	DatabaseDSN     string `yaml:"database_dsn"     env:"DATABASE_DSN"`
}

// SessionConfig selects where conversation state and per-user locks live.
type SessionConfig struct {
	Backend       string        `yaml:"backend"        env:"SESSION_BACKEND"  env-default:"memory"`
	RedisAddr     string        `yaml:"redis_addr"     env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	TTL           time.Duration `yaml:"ttl"            env:"SESSION_TTL"      env-default:"24h"`
	LockTTL       time.Duration `yaml:"lock_ttl"       env:"SESSION_LOCK_TTL" env-default:"2m"`
}

// PollConfig holds the polling cadence.
type PollConfig struct {
	Interval        time.Duration `yaml:"interval"         env:"POLL_INTERVAL"    env-default:"30m"`
	Pacing          time.Duration `yaml:"pacing"           env:"POLL_PACING"      env-default:"2s"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"    env:"FETCH_TIMEOUT"    env-default:"30s"`
	PersistAttempts uint          `yaml:"persist_attempts" env:"PERSIST_ATTEMPTS" env-default:"3"`
	OnStart         bool          `yaml:"on_start"         env:"POLL_ON_START"    env-default:"true"`
}

// TrackingConfig holds defaults for new profiles.
type TrackingConfig struct {
	DefaultThresholdPercent float64 `yaml:"default_threshold_percent" env:"DEFAULT_THRESHOLD_PERCENT" env-default:"5"`
}

// NotifyConfig selects how alerts are delivered.
type NotifyConfig struct {
	Backend      string `yaml:"backend"       env:"NOTIFY_BACKEND"       env-default:"log"`
	WebhookURL   string `yaml:"webhook_url"   env:"NOTIFY_WEBHOOK_URL"`
	WebhookToken string `yaml:"webhook_token" env:"NOTIFY_WEBHOOK_TOKEN"`
}
