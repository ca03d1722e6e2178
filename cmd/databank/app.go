package main

import (
	"context"
	"fmt"

	"github.com/madison88admin/supplychain-app-sub002/internal/config"
	"github.com/madison88admin/supplychain-app-sub002/internal/database"
	"github.com/madison88admin/supplychain-app-sub002/internal/database/mysql"
	"github.com/madison88admin/supplychain-app-sub002/internal/database/postgres"
	"github.com/madison88admin/supplychain-app-sub002/internal/database/sqlite"
	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/madison88admin/supplychain-app-sub002/internal/export"
	"github.com/madison88admin/supplychain-app-sub002/internal/filestore/minio"
	"github.com/madison88admin/supplychain-app-sub002/internal/logger"
	"github.com/madison88admin/supplychain-app-sub002/internal/metrics"
	"github.com/madison88admin/supplychain-app-sub002/internal/schema"
	"github.com/madison88admin/supplychain-app-sub002/internal/tabular"
)

// app holds everything a command needs, opened from one configuration.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       database.DB
	metrics  *metrics.Metrics
	svc      *tabular.Service
	exporter *export.Exporter // nil when no object store is configured

	closers []func()
}

func openDB(ctx context.Context, cfg *database.Config) (database.DB, error) {
	switch cfg.Driver {
	case database.DriverSQLite:
		return sqlite.New(ctx, cfg)
	case database.DriverPostgres:
		return postgres.New(ctx, cfg)
	case database.DriverMySQL:
		return mysql.New(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported database driver %q", cfg.Driver)
	}
}

func openCache(ctx context.Context, cfg config.Cache, log *logger.Logger) (schema.Cache, func(), error) {
	switch cfg.Kind {
	case config.CacheMemory:
		return schema.NewMemoryCache(cfg.TTL), func() {}, nil
	case config.CacheRedis:
		rdb, err := schema.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		log.With().Str("addr", cfg.RedisAddr).Logger().Info("schema cache backed by redis")
		return schema.NewRedisCache(rdb, cfg.RedisPrefix, cfg.TTL), func() { _ = rdb.Close() }, nil
	default:
		return schema.NopCache{}, func() {}, nil
	}
}

// newApp opens the store, the schema cache and, when configured, the object
// store. On error everything opened so far is closed again.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	opened := false
	defer func() {
		if !opened {
			a.Close()
		}
	}()

	db, err := openDB(ctx, cfg.Database.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	cache, closeCache, err := openCache(ctx, cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("open schema cache: %w", err)
	}
	a.closers = append(a.closers, closeCache)

	catalog := schema.NewCatalog(db,
		schema.WithCache(cache),
		schema.WithLogger(log.With().Str("subsystem", "schema").Logger()),
	)
	a.svc = tabular.NewService(db,
		tabular.WithOptions(cfg.TabularOptions()),
		tabular.WithCatalog(catalog),
		tabular.WithObserver(a.metrics),
		tabular.WithLogger(log.With().Str("subsystem", "tabular").Logger()),
	)

	if cfg.Filestore.Enabled() {
		fsCfg := cfg.Filestore.StoreConfig()
		store, err := minio.New(ctx, fsCfg)
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.exporter = export.New(a.svc, store, fsCfg.DefaultBucket, fsCfg.PresignTTL, cfg.Paging.MaxLimit,
			log.With().Str("subsystem", "export").Logger())
	}

	opened = true
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
