package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, applies defaults, and validates.
// An empty path yields the default configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadWithEnvOverrides loads configuration and applies SCRIBE_* environment
// overrides, which always win over file values. The result is re-validated.
func LoadWithEnvOverrides(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides maps SCRIBE_SECTION_FIELD variables onto the config.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
			}
		}
	}
	setInt := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				*dst = i
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}

	setString("SCRIBE_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	setDuration("SCRIBE_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("SCRIBE_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("SCRIBE_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	setInt("SCRIBE_SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	if val := os.Getenv("SCRIBE_SERVER_ALLOWED_ORIGINS"); val != "" {
		cfg.Server.AllowedOrigins = splitAndTrim(val)
	}

	setString("SCRIBE_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SCRIBE_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("SCRIBE_LOGGING_ADD_SOURCE", &cfg.Logging.AddSource)

	setString("SCRIBE_STORAGE_BACKEND", &cfg.Storage.Backend)
	setString("SCRIBE_STORAGE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	setString("SCRIBE_STORAGE_POSTGRES_DSN", &cfg.Storage.PostgresDSN)

	setString("SCRIBE_CLASSIFIER_MODE", &cfg.Classifier.Mode)
	setString("SCRIBE_CLASSIFIER_BASE_URL", &cfg.Classifier.BaseURL)
	setString("SCRIBE_CLASSIFIER_API_KEY", &cfg.Classifier.APIKey)
	setDuration("SCRIBE_CLASSIFIER_TIMEOUT", &cfg.Classifier.Timeout)
	setInt("SCRIBE_CLASSIFIER_MAX_RETRIES", &cfg.Classifier.MaxRetries)

	setInt("SCRIBE_ROUTING_MAX_CONCURRENT", &cfg.Routing.MaxConcurrent)
	setDuration("SCRIBE_ROUTING_SPACE_TIMEOUT", &cfg.Routing.SpaceTimeout)

	setDuration("SCRIBE_APPROVALS_TTL", &cfg.Approvals.TTL)
	setString("SCRIBE_APPROVALS_SWEEP_SCHEDULE", &cfg.Approvals.SweepSchedule)

	setString("SCRIBE_CATALOG_TEMPLATES_DIR", &cfg.Catalog.TemplatesDir)
	setBool("SCRIBE_CATALOG_WATCH", &cfg.Catalog.Watch)

	setString("SCRIBE_NOTIFY_SINK", &cfg.Notify.Sink)
	setString("SCRIBE_NOTIFY_REDIS_ADDRESS", &cfg.Notify.RedisAddress)
	setString("SCRIBE_NOTIFY_REDIS_PASSWORD", &cfg.Notify.RedisPassword)
	setInt("SCRIBE_NOTIFY_REDIS_DB", &cfg.Notify.RedisDB)
	setString("SCRIBE_NOTIFY_REDIS_CHANNEL", &cfg.Notify.RedisChannel)

	setBool("SCRIBE_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setString("SCRIBE_METRICS_PATH", &cfg.Metrics.Path)
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
