// Package config defines the router's configuration: YAML file, defaults,
// SCRIBE_* environment overrides, validation.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Routing    RoutingConfig    `yaml:"routing"`
	Approvals  ApprovalsConfig  `yaml:"approvals"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Notify     NotifyConfig     `yaml:"notify"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddress  string        `yaml:"listen_address"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`

	// AllowedOrigins configures CORS. Empty disables cross-origin access.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// StorageConfig selects and configures the artifact store backend.
type StorageConfig struct {
	// Backend is memory, sqlite, or postgres.
	Backend string `yaml:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ClassifierConfig selects and configures the relevance classifier.
type ClassifierConfig struct {
	// Mode is rules or remote.
	Mode string `yaml:"mode"`

	// Remote classifier settings, used when Mode is remote.
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RoutingConfig tunes the routing engine.
type RoutingConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	SpaceTimeout  time.Duration `yaml:"space_timeout"`
}

// ApprovalsConfig tunes the approval queue.
type ApprovalsConfig struct {
	// TTL is how long a queued approval stays actionable.
	TTL time.Duration `yaml:"ttl"`

	// SweepSchedule is a cron expression for the expiry sweeper. Empty
	// disables scheduled sweeping.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// CatalogConfig configures the policy template catalog.
type CatalogConfig struct {
	// TemplatesDir overlays YAML templates on the built-ins. Empty uses
	// built-ins only.
	TemplatesDir string `yaml:"templates_dir"`

	// Watch hot-reloads the overlay directory on change.
	Watch bool `yaml:"watch"`
}

// NotifyConfig selects the notification sink.
type NotifyConfig struct {
	// Sink is log, redis, or none.
	Sink string `yaml:"sink"`

	// Redis settings, used when Sink is redis.
	RedisAddress  string `yaml:"redis_address"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
