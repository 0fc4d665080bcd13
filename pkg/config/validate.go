package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for contradictions and unusable values.
// It is called after defaults and again after environment overrides.
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format)
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", cfg.Storage.Backend)
	}

	switch cfg.Classifier.Mode {
	case "rules":
	case "remote":
		if cfg.Classifier.BaseURL == "" {
			return fmt.Errorf("classifier.base_url is required for the remote classifier")
		}
	default:
		return fmt.Errorf("classifier.mode: unknown mode %q", cfg.Classifier.Mode)
	}

	if cfg.Routing.MaxConcurrent < 1 {
		return fmt.Errorf("routing.max_concurrent must be at least 1, got %d", cfg.Routing.MaxConcurrent)
	}
	if cfg.Routing.SpaceTimeout <= 0 {
		return fmt.Errorf("routing.space_timeout must be positive")
	}

	if cfg.Approvals.TTL <= 0 {
		return fmt.Errorf("approvals.ttl must be positive")
	}
	if cfg.Approvals.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Approvals.SweepSchedule); err != nil {
			return fmt.Errorf("approvals.sweep_schedule: %w", err)
		}
	}

	switch cfg.Notify.Sink {
	case "log", "none":
	case "redis":
		if cfg.Notify.RedisAddress == "" {
			return fmt.Errorf("notify.redis_address is required for the redis sink")
		}
	default:
		return fmt.Errorf("notify.sink: unknown sink %q", cfg.Notify.Sink)
	}

	return nil
}
