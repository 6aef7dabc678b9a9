package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sydlexius/stashlink/internal/activity"
	"github.com/sydlexius/stashlink/internal/catalog"
	"github.com/sydlexius/stashlink/internal/config"
	"github.com/sydlexius/stashlink/internal/database"
	"github.com/sydlexius/stashlink/internal/event"
	"github.com/sydlexius/stashlink/internal/logging"
	"github.com/sydlexius/stashlink/internal/metrics"
	"github.com/sydlexius/stashlink/internal/reconcile"
	"github.com/sydlexius/stashlink/internal/registry"
	"github.com/sydlexius/stashlink/internal/registry/stashbox"
)

// commandContext lazily loads configuration and opens the catalog for the
// subcommands that need them.
type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	metricsFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	appOnce sync.Once
	app     *app
	appErr  error
}

// app is the wired set of services behind every command.
type app struct {
	cfg     *config.Config
	logMgr  *logging.Manager
	logger  *slog.Logger
	db      *sql.DB
	catalog *catalog.Service
	skips   *catalog.SkipStore
	sources *registry.Registry
	client  *registry.BreakerClient
	bus     *event.Bus
	journal *activity.Journal
	engine  *reconcile.ApplyEngine
}

func newCommandContext(configFlag, logLevelFlag, metricsFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		metricsFlag:  metricsFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			if !logging.ValidLevel(*c.logLevelFlag) {
				c.configErr = fmt.Errorf("invalid log level: %q", *c.logLevelFlag)
				return
			}
			cfg.Logging.Level = *c.logLevelFlag
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureApp() (*app, error) {
	c.appOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.appErr = err
			return
		}
		c.app, c.appErr = openApp(cfg)
	})
	return c.app, c.appErr
}

func openApp(cfg *config.Config) (*app, error) {
	logMgr, logger := logging.NewManager(cfg.Logging)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		_ = logMgr.Close()
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		_ = logMgr.Close()
		return nil, err
	}

	sources := registry.NewRegistry()
	for _, s := range cfg.RegistrySources() {
		if err := sources.Register(s); err != nil {
			_ = db.Close()
			_ = logMgr.Close()
			return nil, fmt.Errorf("registering source: %w", err)
		}
	}

	limiter := registry.NewRateLimiterMap(cfg.RateLimits())
	adapter := stashbox.New(limiter, logger, cfg.Stashbox.Timeout)
	client := registry.NewBreakerClient(adapter, cfg.BreakerSettings(), logger)

	journal := activity.NewJournal(db, logger)
	bus := event.NewBus(logger, 0)
	journal.Attach(bus)
	bus.Start()

	svc := catalog.NewService(db)
	logger.Debug("app ready",
		slog.String("db", cfg.Database.Path),
		slog.Int("sources", sources.Len()),
		slog.String("logging", cfg.Logging.String()))

	return &app{
		cfg:     cfg,
		logMgr:  logMgr,
		logger:  logger,
		db:      db,
		catalog: svc,
		skips:   catalog.NewSkipStore(db),
		sources: sources,
		client:  client,
		bus:     bus,
		journal: journal,
		engine:  reconcile.NewApplyEngine(svc, logger, reconcile.WithEventBus(bus)),
	}, nil
}

func (a *app) matcher(kind catalog.Kind, sources []registry.Source) *reconcile.Matcher {
	return reconcile.NewMatcher(kind, a.client, sources,
		reconcile.WithSearchLimit(a.cfg.Match.SearchLimit),
		reconcile.WithThresholds(a.cfg.Match.Confidence),
		reconcile.WithLogger(a.logger))
}

func (a *app) session(kind catalog.Kind, cfg reconcile.SessionConfig) *reconcile.Session {
	return reconcile.NewSession(a.catalog, a.matcher(kind, a.sources.All()), a.engine, a.skips, cfg, a.logger)
}

func (a *app) sessionConfig() reconcile.SessionConfig {
	return reconcile.SessionConfig{Threshold: a.cfg.Match.Threshold, Apply: a.cfg.Match.Apply}
}

// finish flushes pending events, closes the catalog and log file and
// writes the metrics textfile when one was requested.
func (c *commandContext) finish() error {
	var errs []error
	if a := c.app; a != nil {
		c.app = nil
		a.bus.Stop()
		errs = append(errs, a.db.Close(), a.logMgr.Close())
	}
	if c.metricsFlag != nil && *c.metricsFlag != "" {
		errs = append(errs, metrics.WriteTextfile(*c.metricsFlag))
	}
	return errors.Join(errs...)
}
