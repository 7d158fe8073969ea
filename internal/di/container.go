package di

import (
	"fmt"
	"os"

	"ckan-migrate/internal/migration/adapter/ckan"
	"ckan-migrate/internal/migration/adapter/persistence"
	"ckan-migrate/internal/migration/config"
	"ckan-migrate/internal/migration/usecase"
	"ckan-migrate/internal/shared/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Container wires the migration tool's components together with proper
// lifecycle management.
type Container struct {
	Config   *config.Config
	Logger   logger.Logger
	Migrator *usecase.Migrator

	wireLog *zap.Logger
}

// NewContainer builds the full dependency graph from the loaded
// configuration.
func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger.NewFileLogger(cfg.Tunables.LogFile),
	}

	wireLog, err := newWireLogger()
	if err != nil {
		return nil, fmt.Errorf("initialize wire logger: %w", err)
	}
	c.wireLog = wireLog

	sourceClient := ckan.NewClient(cfg.Source.URL, ckan.Options{
		APIKey:   cfg.Source.APIKey,
		Timeout:  cfg.Tunables.HTTPTimeout,
		Attempts: cfg.Tunables.RetryAttempts,
		Delay:    cfg.Tunables.RetryDelay,
		Wire:     wireLog.Named("source"),
	})
	targetClient := ckan.NewClient(cfg.Target.URL, ckan.Options{
		APIKey:   cfg.Target.APIKey,
		Timeout:  cfg.Tunables.HTTPTimeout,
		Attempts: cfg.Tunables.RetryAttempts,
		Delay:    cfg.Tunables.RetryDelay,
		Wire:     wireLog.Named("target"),
	})

	source := ckan.NewSourceClient(sourceClient, cfg.Tunables.PageSize, c.Logger)
	target := ckan.NewTargetClient(targetClient, c.Logger)

	staging, err := persistence.NewFSStagingStore(cfg.Tunables.StagingDir, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("initialize staging store: %w", err)
	}
	mappings := persistence.NewFileMappingStore(cfg.Tunables.MappingFile, c.Logger)

	var limiter *rate.Limiter
	if cfg.Tunables.ThrottleInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Tunables.ThrottleInterval), 1)
	}

	c.Migrator = usecase.NewMigrator(source, target, mappings, staging, limiter, c.Logger)
	return c, nil
}

// newWireLogger builds the request-level debug logger. It stays quiet
// unless LOG_LEVEL asks for debug output.
func newWireLogger() (*zap.Logger, error) {
	level := zap.WarnLevel
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = zap.DebugLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}

// Close flushes buffered log output.
func (c *Container) Close() {
	if c.wireLog != nil {
		_ = c.wireLog.Sync()
	}
}
