// Package app assembles the quota services from configuration. Both the
// HTTP server and quotactl build their dependencies here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/quotaledger/internal"
	"github.com/DukeRupert/quotaledger/internal/cache"
	"github.com/DukeRupert/quotaledger/internal/handler"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/DukeRupert/quotaledger/internal/seed"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/redis/go-redis/v9"
)

// Services groups the quota services.
type Services struct {
	Catalog       service.CatalogService
	Quota         service.QuotaService
	Cycles        service.BillingCycleService
	Subscriptions service.SubscriptionService
}

// NewServices builds every service over store with the same options.
func NewServices(store repository.Store, logger *slog.Logger, opts ...service.Option) *Services {
	catalog := service.NewCatalogService(store, logger, opts...)
	return &Services{
		Catalog:       catalog,
		Quota:         service.NewQuotaService(store, catalog, logger, opts...),
		Cycles:        service.NewBillingCycleService(store, logger, opts...),
		Subscriptions: service.NewSubscriptionService(store, logger, opts...),
	}
}

// ServiceOptions translates configuration into service options.
func ServiceOptions(cfg *internal.Config) []service.Option {
	return []service.Option{
		service.WithMetrics(cfg.MetricSet()),
		service.WithCycleLength(cfg.BillingCycleLength),
		service.WithTrialLength(cfg.TrialLength),
	}
}

// Runtime holds the open connections behind the services.
type Runtime struct {
	DB         *sql.DB
	Store      *repository.SQLStore
	Redis      *redis.Client
	LimitCache *cache.LimitCache
	Services   *Services
}

// Open connects to the database (and Redis when configured) and builds the
// services. When migrate is true pending migrations run first.
func Open(ctx context.Context, cfg *internal.Config, logger *slog.Logger, migrate bool) (*Runtime, error) {
	db, err := internal.OpenDB(ctx, cfg.DatabaseDriver, cfg.DatabaseUrl)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := internal.RunMigrations(ctx, db, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	rt := &Runtime{DB: db, Store: repository.NewStore(db)}
	opts := ServiceOptions(cfg)

	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cache.ConnectConfig{
			URL:            cfg.RedisURL,
			RetryAttempts:  5,
			RetryInterval:  time.Second,
			ConnectTimeout: 5 * time.Second,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.Redis = client
		rt.LimitCache = cache.NewLimitCache(client, cfg.CatalogCacheTTL)
		opts = append(opts, service.WithLimitCache(rt.LimitCache))
		logger.Info("catalog cache enabled", "ttl", cfg.CatalogCacheTTL)
	}

	rt.Services = NewServices(rt.Store, logger, opts...)
	return rt, nil
}

// HealthChecks lists the dependencies GET /health probes.
func (rt *Runtime) HealthChecks() []handler.HealthCheck {
	checks := []handler.HealthCheck{{Name: "database", Check: rt.DB.PingContext}}
	if rt.LimitCache != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: rt.LimitCache.Healthcheck})
	}
	return checks
}

// Close releases the connections.
func (rt *Runtime) Close() error {
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	return rt.DB.Close()
}

// ImportCatalog loads a TOML or YAML catalog file into the store.
func ImportCatalog(ctx context.Context, catalog service.CatalogService, path string) (int, error) {
	limits, err := seed.Load(path)
	if err != nil {
		return 0, err
	}
	return catalog.Import(ctx, limits)
}
