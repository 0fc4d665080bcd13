package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"hivemind-hq/scribe/pkg/approvals"
	"hivemind-hq/scribe/pkg/capability"
	"hivemind-hq/scribe/pkg/capability/remote"
	"hivemind-hq/scribe/pkg/capability/rules"
	"hivemind-hq/scribe/pkg/config"
	"hivemind-hq/scribe/pkg/notify"
	"hivemind-hq/scribe/pkg/routing"
	"hivemind-hq/scribe/pkg/server"
	"hivemind-hq/scribe/pkg/sharing"
	"hivemind-hq/scribe/pkg/sharing/store"
	"hivemind-hq/scribe/pkg/spaces"
	"hivemind-hq/scribe/pkg/spaces/catalog"
	"hivemind-hq/scribe/pkg/telemetry/logging"
	"hivemind-hq/scribe/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the sharing router",
	Long: `Start the sharing router with the specified configuration.

Examples:
  # Start with defaults (in-memory store, rule-based classifier)
  scribe run

  # Start with a config file
  scribe run --config /etc/scribe/config.yaml

  # Override the listen address
  scribe run --listen 0.0.0.0:8080

  # Validate config without starting
  scribe run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return err
	}
	logger.SetDefault()

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Artifact store
	artifactStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer artifactStore.Close()
	logger.Info("artifact store initialized", "backend", cfg.Storage.Backend)

	// Notification sink
	notifier, closeNotifier := buildNotifier(cfg, logger)
	defer closeNotifier()

	// Template catalog, optionally hot-reloaded
	cat, err := buildCatalog(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing catalog: %w", err)
	}

	// Classifier
	classifier, closeClassifier := buildClassifier(cfg, logger)
	defer closeClassifier()
	logger.Info("classifier initialized", "mode", cfg.Classifier.Mode)

	var collector *metrics.Collector
	var observer routing.Observer
	var registryObserver spaces.Observer
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.NewRegistry())
		observer = collector
		registryObserver = collector
	}

	registry := spaces.NewRegistry(spaces.RegistryOptions{
		Logger:   logger.Slog(),
		Notifier: notifier,
		Observer: registryObserver,
	})

	engine, err := routing.NewEngine(routing.EngineParams{
		Registry:   registry,
		Store:      artifactStore,
		Classifier: classifier,
		Notifier:   notifier,
		Observer:   observer,
		Logger:     logger.Slog(),
		Options: routing.Options{
			MaxConcurrent: cfg.Routing.MaxConcurrent,
			SpaceTimeout:  cfg.Routing.SpaceTimeout,
			ApprovalTTL:   cfg.Approvals.TTL,
		},
	})
	if err != nil {
		return fmt.Errorf("initializing routing engine: %w", err)
	}

	queue := approvals.NewQueue(artifactStore, registry, logger.Slog())

	// Expiry sweeper
	sweeper := approvals.NewSweeper(artifactStore, cfg.Approvals.SweepSchedule, logger.Slog())

	if collector != nil {
		queue.SetObserver(collector)
		sweeper.SetObserver(collector)

		// Seed the pending gauge from the store so restarts do not reset it.
		if pending, err := artifactStore.CountPendingApprovals(ctx); err != nil {
			logger.Warn("could not count pending approvals", "error", err)
		} else {
			collector.SetPendingApprovals(pending)
		}
	}

	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("starting approval sweeper: %w", err)
	}
	defer sweeper.Stop()

	srv, err := server.New(server.Params{
		Config:      cfg.Server,
		Registry:    registry,
		Engine:      engine,
		Queue:       queue,
		Catalog:     cat,
		Store:       artifactStore,
		Logger:      logger,
		Metrics:     collector,
		MetricsPath: cfg.Metrics.Path,
	})
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}

	logger.Info("scribe starting",
		"version", Version,
		"address", cfg.Server.ListenAddress,
	)
	return srv.Start(ctx)
}

// buildStore selects the artifact store backend.
func buildStore(ctx context.Context, cfg *config.Config) (sharing.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.Storage.SQLitePath)
	case "postgres":
		return store.NewPostgresStore(ctx, store.PostgresConfig{DSN: cfg.Storage.PostgresDSN})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// buildNotifier selects the notification sink. The returned func releases
// the sink's resources.
func buildNotifier(cfg *config.Config, logger *logging.Logger) (notify.Notifier, func()) {
	switch cfg.Notify.Sink {
	case "redis":
		n := notify.NewRedisNotifier(notify.RedisOptions{
			Address:  cfg.Notify.RedisAddress,
			Password: cfg.Notify.RedisPassword,
			DB:       cfg.Notify.RedisDB,
			Channel:  cfg.Notify.RedisChannel,
		}, logger.Slog())
		return n, func() { _ = n.Close() }
	case "none":
		return notify.Nop(), func() {}
	default:
		return notify.NewLogNotifier(logger.Slog()), func() {}
	}
}

// buildCatalog loads the template catalog and starts the overlay watcher
// when configured.
func buildCatalog(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*catalog.Catalog, error) {
	if cfg.Catalog.TemplatesDir == "" {
		return catalog.New(logger.Slog()), nil
	}

	cat, err := catalog.NewFromDir(cfg.Catalog.TemplatesDir, logger.Slog())
	if err != nil {
		return nil, err
	}

	if cfg.Catalog.Watch {
		watcher, err := catalog.NewWatcher(cat, 500*time.Millisecond)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Warn("catalog watcher stopped", "error", err)
			}
		}()
	}
	return cat, nil
}

// buildClassifier selects the classifier implementation. The returned func
// releases the classifier's resources.
func buildClassifier(cfg *config.Config, logger *logging.Logger) (capability.Classifier, func()) {
	if cfg.Classifier.Mode == "remote" {
		c := remote.New(remote.Options{
			BaseURL:    cfg.Classifier.BaseURL,
			APIKey:     cfg.Classifier.APIKey,
			Timeout:    cfg.Classifier.Timeout,
			MaxRetries: cfg.Classifier.MaxRetries,
			Logger:     logger.Slog(),
		})
		return c, func() { _ = c.Close() }
	}
	return rules.New(logger.Slog()), func() {}
}
