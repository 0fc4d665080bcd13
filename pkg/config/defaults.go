package config

import "time"

// ApplyDefaults fills zero-valued fields with production defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "scribe.db"
	}

	if cfg.Classifier.Mode == "" {
		cfg.Classifier.Mode = "rules"
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 10 * time.Second
	}
	if cfg.Classifier.MaxRetries == 0 {
		cfg.Classifier.MaxRetries = 2
	}

	if cfg.Routing.MaxConcurrent == 0 {
		cfg.Routing.MaxConcurrent = 4
	}
	if cfg.Routing.SpaceTimeout == 0 {
		cfg.Routing.SpaceTimeout = 15 * time.Second
	}

	if cfg.Approvals.TTL == 0 {
		cfg.Approvals.TTL = 7 * 24 * time.Hour
	}
	if cfg.Approvals.SweepSchedule == "" {
		cfg.Approvals.SweepSchedule = "@hourly"
	}

	if cfg.Notify.Sink == "" {
		cfg.Notify.Sink = "log"
	}
	if cfg.Notify.RedisChannel == "" {
		cfg.Notify.RedisChannel = "scribe:events"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
