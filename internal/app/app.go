// Package app wires the collector, aggregator, cache and optional archive
// shared by the API and the one-shot report.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"example.com/signups/internal/aggregate"
	"example.com/signups/internal/cache"
	"example.com/signups/internal/collect"
	"example.com/signups/internal/config"
	"example.com/signups/internal/crm"
	"example.com/signups/internal/dashboard"
	"example.com/signups/internal/ingest"
	spg "example.com/signups/internal/storage/postgres"
)

const initMigration = "0001_init.sql"

type App struct {
	Config    config.Config
	Dashboard *dashboard.Service
	// DB and Ingestor are nil when no POSTGRES_DSN is configured.
	DB       *spg.DB
	Ingestor *ingest.Ingestor
}

// Build constructs the service graph. With an archive configured it connects,
// applies the migration and starts the ingestor on ctx.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	unit, err := collect.ParsePartitionUnit(cfg.Partition)
	if err != nil {
		return nil, err
	}
	loc := cfg.Location()

	client := crm.NewClient(crm.ClientConfig{
		BaseURL: cfg.HubSpotBaseURL,
		Token:   cfg.HubSpotToken,
		Timeout: cfg.HTTPTimeout,
	}, nil, logger)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	collector := collect.NewCollector(client, collect.Options{
		Partition:    unit,
		Location:     loc,
		MinSubwindow: cfg.MinSubwindow,
		MaxRecords:   cfg.MaxRecords,
		Retry: collect.RetryPolicy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryInitialBackoff,
			MaxBackoff:     cfg.RetryMaxBackoff,
			Multiplier:     2,
		},
		Limiter: limiter,
		Logger:  logger,
	})

	store, err := cache.NewStore[int, dashboard.Snapshot](cfg.CacheMaxEntries, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	var opts []dashboard.Option
	if cfg.ArchiveEnabled() {
		db, err := spg.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.RunMigration(ctx, initMigration); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration: %w", err)
		}
		logger.Info("archive: migration applied", "migration", initMigration)

		a.DB = db
		a.Ingestor = ingest.NewIngestor(spg.NewWriter(db), cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait, logger)
		a.Ingestor.Start(ctx)
		logger.Info("archive: ingestor started",
			"queue", cfg.QueueMaxSize,
			"batch", cfg.BatchMaxSize,
			"wait", cfg.BatchMaxWait.String())
		opts = append(opts, dashboard.WithArchive(a.Ingestor, db))
	}

	a.Dashboard = dashboard.NewService(collector, aggregate.New(loc, logger), store, dashboard.Settings{
		DefaultDays:        cfg.LookbackDays,
		MaxDays:            cfg.MaxLookbackDays,
		PageSize:           cfg.PageSize,
		MaxResultsPerQuery: cfg.MaxResultsPerQuery,
		TimezoneName:       loc.String(),
	}, logger, opts...)
	return a, nil
}

// Ready pings the archive when one is configured.
func (a *App) Ready(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Ready(ctx)
}

// Close waits up to timeout for the ingestor to flush (its context must
// already be cancelled) and closes the database.
func (a *App) Close(timeout time.Duration) {
	if a.Ingestor != nil {
		select {
		case <-a.Ingestor.Done():
		case <-time.After(timeout):
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
