// Package service contains the business logic layer.
//
// This file implements the tier catalog: the mutable mapping from
// (tier, metric) to a usage limit.
package service

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// CatalogService reads and administers tier limits.
type CatalogService interface {
	// LimitFor returns the limit for a pair. A missing row reads as
	// domain.Unlimited, the same as a stored -1.
	LimitFor(ctx context.Context, tier domain.Tier, metric domain.Metric) (domain.Limit, error)

	// Lookup returns the limit and whether a row exists for the pair.
	// Returns domain.EINVALID for an unknown tier.
	Lookup(ctx context.Context, tier domain.Tier, metric domain.Metric) (domain.Limit, bool, error)

	// SetLimit creates or replaces a catalog entry.
	// Returns domain.EINVALID for an unknown tier or metric or a limit below -1.
	SetLimit(ctx context.Context, tier domain.Tier, metric domain.Metric, limit domain.Limit) (*domain.TierLimit, error)

	// DeleteLimit removes a catalog entry.
	// Returns domain.ENOTFOUND if there is none.
	DeleteLimit(ctx context.Context, tier domain.Tier, metric domain.Metric) error

	// List returns every entry ordered by tier, then metric.
	List(ctx context.Context) ([]domain.TierLimit, error)

	// Import upserts all entries in one transaction. Nothing is written if any
	// entry is invalid.
	Import(ctx context.Context, limits []domain.TierLimit) (int, error)
}

// =============================================================================
// Implementation
// =============================================================================

type catalogService struct {
	store  repository.Store
	logger *slog.Logger
	cfg    config
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(store repository.Store, logger *slog.Logger, opts ...Option) CatalogService {
	return &catalogService{
		store:  store,
		logger: logger,
		cfg:    newConfig(opts),
	}
}

// LimitFor returns the raw catalog limit for a pair.
func (s *catalogService) LimitFor(ctx context.Context, tier domain.Tier, metric domain.Metric) (domain.Limit, error) {
	limit, found, err := s.Lookup(ctx, tier, metric)
	if err != nil {
		return 0, err
	}
	if !found {
		return domain.Unlimited, nil
	}
	return limit, nil
}

// Lookup reads through the cache when one is configured.
func (s *catalogService) Lookup(ctx context.Context, tier domain.Tier, metric domain.Metric) (domain.Limit, bool, error) {
	const op = "catalog.lookup"

	if !tier.IsValid() {
		return 0, false, domain.Invalid(op, "unknown subscription tier")
	}

	// fill stays false when the cache is down; there is no generation to
	// check a fill against.
	var (
		fill bool
		gen  int64
	)
	if s.cfg.cache != nil {
		cached, hit, g, err := s.cfg.cache.Get(ctx, tier, metric)
		switch {
		case err != nil:
			metrics.CatalogCacheTotal.WithLabelValues("error").Inc()
			s.logger.Warn("catalog cache read failed", "tier", tier, "metric", metric, "error", err)
		case hit:
			metrics.CatalogCacheTotal.WithLabelValues("hit").Inc()
			return cached.Limit, cached.Found, nil
		default:
			metrics.CatalogCacheTotal.WithLabelValues("miss").Inc()
			fill, gen = true, g
		}
	}

	lookup := domain.LimitLookup{}
	row, err := s.store.GetTierLimit(ctx, repository.GetTierLimitParams{
		Tier:   string(tier),
		Metric: string(metric),
	})
	switch {
	case err == nil:
		lookup = domain.LimitLookup{Limit: domain.Limit(row.LimitValue), Found: true}
	case repository.IsNoRows(err):
	default:
		return 0, false, domain.StorageFailure(err, op, "failed to read tier limit")
	}

	if fill {
		stored, err := s.cfg.cache.Fill(ctx, tier, metric, gen, lookup)
		switch {
		case err != nil:
			s.logger.Warn("catalog cache write failed", "tier", tier, "metric", metric, "error", err)
		case !stored:
			s.logger.Debug("catalog changed during lookup, not caching", "tier", tier, "metric", metric)
		}
	}

	return lookup.Limit, lookup.Found, nil
}

// SetLimit creates or replaces a catalog entry.
func (s *catalogService) SetLimit(ctx context.Context, tier domain.Tier, metric domain.Metric, value domain.Limit) (*domain.TierLimit, error) {
	const op = "catalog.set_limit"

	limit := domain.TierLimit{Tier: tier, Metric: metric, Limit: value}
	if err := s.validate(op, limit); err != nil {
		return nil, err
	}

	row, err := s.store.UpsertTierLimit(ctx, repository.UpsertTierLimitParams{
		Tier:       string(limit.Tier),
		Metric:     string(limit.Metric),
		LimitValue: int64(limit.Limit),
	})
	if err != nil {
		return nil, domain.StorageFailure(err, op, "failed to write tier limit")
	}
	s.invalidate(ctx, limit.Tier, limit.Metric)

	s.logger.Info("tier limit set",
		"tier", limit.Tier,
		"metric", limit.Metric,
		"limit", limit.Limit.String(),
	)

	saved := toTierLimit(row)
	return &saved, nil
}

// DeleteLimit removes a catalog entry.
func (s *catalogService) DeleteLimit(ctx context.Context, tier domain.Tier, metric domain.Metric) error {
	const op = "catalog.delete_limit"

	if !tier.IsValid() {
		return domain.Invalid(op, "unknown subscription tier")
	}

	n, err := s.store.DeleteTierLimit(ctx, repository.DeleteTierLimitParams{
		Tier:   string(tier),
		Metric: string(metric),
	})
	if err != nil {
		return domain.StorageFailure(err, op, "failed to delete tier limit")
	}
	if n == 0 {
		return domain.NotFound(op, "tier limit", string(tier)+"/"+string(metric))
	}
	s.invalidate(ctx, tier, metric)

	s.logger.Info("tier limit deleted", "tier", tier, "metric", metric)
	return nil
}

// List returns the whole catalog.
func (s *catalogService) List(ctx context.Context) ([]domain.TierLimit, error) {
	const op = "catalog.list"

	rows, err := s.store.ListTierLimits(ctx)
	if err != nil {
		return nil, domain.StorageFailure(err, op, "failed to list tier limits")
	}

	limits := make([]domain.TierLimit, len(rows))
	for i, row := range rows {
		limits[i] = toTierLimit(row)
	}
	return limits, nil
}

// Import upserts a batch of entries atomically.
func (s *catalogService) Import(ctx context.Context, limits []domain.TierLimit) (int, error) {
	const op = "catalog.import"

	for _, l := range limits {
		if err := s.validate(op, l); err != nil {
			return 0, err
		}
	}

	err := s.store.ExecTx(ctx, func(q repository.QuotaQuerier) error {
		for _, l := range limits {
			if _, err := q.UpsertTierLimit(ctx, repository.UpsertTierLimitParams{
				Tier:       string(l.Tier),
				Metric:     string(l.Metric),
				LimitValue: int64(l.Limit),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, domain.StorageFailure(err, op, "failed to import tier limits")
	}

	for _, l := range limits {
		s.invalidate(ctx, l.Tier, l.Metric)
	}

	s.logger.Info("tier limits imported", "count", len(limits))
	return len(limits), nil
}

func (s *catalogService) validate(op string, limit domain.TierLimit) error {
	if err := limit.Validate(); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, domain.ErrorMessage(err))
	}
	if !s.cfg.metrics.Contains(limit.Metric) {
		return domain.Invalid(op, "unknown metric "+string(limit.Metric))
	}
	return nil
}

func (s *catalogService) invalidate(ctx context.Context, tier domain.Tier, metric domain.Metric) {
	if s.cfg.cache == nil {
		return
	}
	if err := s.cfg.cache.Invalidate(ctx, tier, metric); err != nil {
		s.logger.Warn("catalog cache invalidation failed", "tier", tier, "metric", metric, "error", err)
	}
}
