package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.LocalPath == "" {
			return errors.New("storage: LOCAL_STORAGE must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.Bucket == "" {
			return errors.New("storage: STORAGE_BUCKET must be set for the gcs backend")
		}
	case StoragePostgres:
		if c.Storage.DatabaseDSN == "" {
			return errors.New("storage: DATABASE_DSN must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}

	switch c.Session.Backend {
	case SessionMemory:
	case SessionRedis:
		if c.Session.RedisAddr == "" {
			return errors.New("session: REDIS_ADDR must be set for the redis backend")
		}
	default:
		return fmt.Errorf("session: unknown backend %q", c.Session.Backend)
	}

	switch c.Notify.Backend {
	case NotifyLog:
	case NotifyWebhook:
		u, err := url.Parse(c.Notify.WebhookURL)
		if c.Notify.WebhookURL == "" || err != nil || u.Host == "" {
			return fmt.Errorf("notify: NOTIFY_WEBHOOK_URL must be an absolute URL (got %q)", c.Notify.WebhookURL)
		}
	default:
		return fmt.Errorf("notify: unknown backend %q", c.Notify.Backend)
	}

	if c.Tracking.DefaultThresholdPercent <= 0 {
		return fmt.Errorf("tracking: default_threshold_percent must be > 0 (got %v)", c.Tracking.DefaultThresholdPercent)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll: interval must be > 0 (got %v)", c.Poll.Interval)
	}
	if c.Poll.FetchTimeout <= 0 {
		return fmt.Errorf("poll: fetch_timeout must be > 0 (got %v)", c.Poll.FetchTimeout)
	}
	if c.Poll.Pacing < 0 {
		return fmt.Errorf("poll: pacing must be >= 0 (got %v)", c.Poll.Pacing)
	}
	if c.Poll.PersistAttempts == 0 {
		return errors.New("poll: persist_attempts must be >= 1")
	}

	return nil
}
