// Package app wires the progression engine's services, scheduler and
// background loops onto a storage backend. Both the HTTP server and the
// progressctl CLI build their object graph through New.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forgo/progression/internal/config"
	"github.com/forgo/progression/internal/database"
	"github.com/forgo/progression/internal/jobs"
	"github.com/forgo/progression/internal/repository"
	"github.com/forgo/progression/internal/service"
	"github.com/forgo/progression/internal/sqlstore"
)

// Store is everything the engine persists. Both the SurrealDB repositories
// and the SQLite store satisfy it.
type Store interface {
	service.StateRepository
	service.ActivityRepository
	service.ChangeLogRepository
	service.BadgeUnlockRepository
	service.InsightRepository
	service.HistoryRepository
	jobs.RunHistoryRepository
	jobs.SnapshotRepository
	jobs.AnalyticsRepository
	jobs.MetricRepository
	jobs.UserSource
}

var (
	_ Store = (*repository.Repositories)(nil)
	_ Store = (*sqlstore.Store)(nil)
)

// App holds the wired engine
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Location    *time.Location
	Store       Store
	Hub         *service.ChangeHub
	Progression *service.ProgressionService
	Badges      *service.BadgeService
	Aggregator  *service.DimensionAggregator
	Analyzer    *service.CorrelationAnalyzer
	Query       *service.QueryService
	Scheduler   *jobs.DailyScheduler

	ping    func(ctx context.Context) error
	closers []func() error
}

// Options tune New beyond what the configuration carries
type Options struct {
	// Now overrides the wall clock
	Now func() time.Time
	// HeartbeatInterval enables change-hub heartbeats for streaming clients
	HeartbeatInterval time.Duration
}

// New builds the object graph on top of store
func New(cfg *config.Config, store Store, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, err
	}
	weights, err := service.WeightsFromConfig(cfg.Engine.DimensionWeights)
	if err != nil {
		return nil, fmt.Errorf("dimension weights: %w", err)
	}
	if len(weights) == 0 {
		weights = nil
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Location: loc,
		Store:    store,
		Hub:      service.NewChangeHub(opts.HeartbeatInterval),
	}

	a.Progression = service.NewProgressionService(service.ProgressionServiceConfig{
		States:            store,
		Activities:        store,
		ChangeLog:         store,
		Hub:               a.Hub,
		Weights:           weights,
		Location:          loc,
		RatingHistoryDays: cfg.Engine.RatingHistoryDays,
		Logger:            logger.Named("progression"),
		Now:               now,
	})

	catalog, err := service.DefaultBadgeCatalog()
	if err != nil {
		return nil, fmt.Errorf("badge catalog: %w", err)
	}
	a.Badges = service.NewBadgeService(service.BadgeServiceConfig{
		Engine: service.NewBadgeEngine(catalog),
		Builder: service.NewContextBuilder(service.ContextBuilderConfig{
			States:     a.Progression,
			Activities: store,
			Unlocks:    store,
			Location:   loc,
			Logger:     logger.Named("badges"),
		}),
		Unlocks:     store,
		Progression: a.Progression,
		Logger:      logger.Named("badges"),
		Now:         now,
	})

	a.Aggregator = service.NewDimensionAggregator(service.AggregatorConfig{
		States:          a.Progression,
		Hub:             a.Hub,
		Weights:         weights,
		ConfidenceFloor: cfg.Engine.ConfidenceFloor,
		WindowDays:      cfg.Engine.RatingHistoryDays,
		Logger:          logger.Named("aggregator"),
		Now:             now,
	})

	a.Analyzer = service.NewCorrelationAnalyzer(service.CorrelationAnalyzerConfig{
		Activities: store,
		Insights:   store,
		Hub:        a.Hub,
		WindowDays: cfg.Engine.CorrelationWindowDays,
		MinSamples: cfg.Engine.CorrelationMinSamples,
		Threshold:  cfg.Engine.CorrelationThreshold,
		Location:   loc,
		Logger:     logger.Named("correlation"),
	})

	a.Query = service.NewQueryService(service.QueryServiceConfig{
		Progression: a.Progression,
		Badges:      a.Badges,
		Aggregator:  a.Aggregator,
		Insights:    store,
		History:     store,
	})

	a.Scheduler = jobs.NewDailyScheduler(jobs.SchedulerConfig{
		Progression:             a.Progression,
		Badges:                  a.Badges,
		Analyzer:                a.Analyzer,
		Aggregator:              a.Aggregator,
		Activities:              store,
		Runs:                    store,
		Snapshots:               store,
		Analytics:               store,
		Metrics:                 store,
		Users:                   store,
		Hub:                     a.Hub,
		Logger:                  logger.Named("scheduler"),
		Now:                     now,
		Location:                loc,
		DecayRate:               cfg.Engine.DecayRate,
		MaxCatchUpDays:          cfg.Engine.MaxCatchUpDays,
		RunHistoryRetentionDays: cfg.Engine.RunHistoryRetentionDays,
		DefaultUserID:           cfg.Engine.DefaultUserID,
	})

	return a, nil
}

// Open connects the store named by cfg.Database and wires the engine on it.
// Close releases the store.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store  Store
		closer func() error
		ping   func(ctx context.Context) error
	)
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		s, err := sqlstore.Open(cfg.Database.SQLitePath, logger.Named("sqlstore"))
		if err != nil {
			return nil, err
		}
		store, closer, ping = s, s.Close, s.Ping
	case config.DriverSurrealDB:
		db := database.NewSurrealDB(database.Config{
			Host:      cfg.Database.Host,
			Port:      cfg.Database.Port,
			User:      cfg.Database.User,
			Password:  cfg.Database.Password,
			Namespace: cfg.Database.Namespace,
			Database:  cfg.Database.Database,
		})
		if err := db.Connect(ctx); err != nil {
			return nil, err
		}
		store, closer, ping = repository.NewRepositories(db, logger.Named("repository")), db.Close, db.Ping
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	a, err := New(cfg, store, logger, opts)
	if err != nil {
		_ = closer()
		return nil, err
	}
	a.closers = append(a.closers, closer)
	a.ping = ping
	logger.Info("store opened", zap.String("driver", cfg.Database.Driver))
	return a, nil
}

// DailyTrigger returns the periodic run loop configured for this app
func (a *App) DailyTrigger() *jobs.DailyTrigger {
	return jobs.NewDailyTrigger(jobs.DailyTriggerConfig{
		Scheduler:  a.Scheduler,
		Interval:   a.Config.Engine.TriggerInterval,
		StartDelay: 5 * time.Second,
		Logger:     a.Logger.Named("trigger"),
	})
}

// AggregatorRefresher returns the periodic wellness-index refresh loop
func (a *App) AggregatorRefresher() *jobs.AggregatorRefresher {
	return jobs.NewAggregatorRefresher(a.Aggregator, a.Scheduler, a.Config.Engine.AggregatorInterval, a.Logger.Named("refresher"))
}

// Ping checks the store connection. Stores wired through New are assumed live.
func (a *App) Ping(ctx context.Context) error {
	if a.ping == nil {
		return nil
	}
	return a.ping(ctx)
}

// Close stops the change hub and releases the store
func (a *App) Close() error {
	a.Hub.Close()
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
