// Package service contains the business logic layer.
//
// This file implements the quota evaluator and usage recorder.
package service

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService answers quota questions and records consumption.
type QuotaService interface {
	// Evaluate reports whether userID may consume metric in its current
	// billing cycle. Being over quota is a normal result, not an error.
	// Returns domain.EINVALID for an unknown metric.
	// Returns domain.ENOTFOUND if the account does not exist.
	Evaluate(ctx context.Context, userID uuid.UUID, metric string) (*domain.QuotaResult, error)

	// Increment adds amount to the current cycle's counter, creating it on
	// first use. It does not check the quota.
	// Returns domain.EINVALID for an unknown metric or a negative amount.
	// Returns domain.ENOTFOUND if the account does not exist.
	Increment(ctx context.Context, userID uuid.UUID, metric string, amount int64) (*domain.UsageCounter, error)

	// Usage evaluates every configured metric for the current cycle.
	Usage(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error)

	// History returns counters across cycles, newest cycle first.
	History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.UsageCounter, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store   repository.Store
	catalog CatalogService
	logger  *slog.Logger
	cfg     config
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(store repository.Store, catalog CatalogService, logger *slog.Logger, opts ...Option) QuotaService {
	return &quotaService{
		store:   store,
		catalog: catalog,
		logger:  logger,
		cfg:     newConfig(opts),
	}
}

// Evaluate reads the account, limit and counter without locking. A caller
// racing a cycle rollover may see the previous cycle's usage.
func (s *quotaService) Evaluate(ctx context.Context, userID uuid.UUID, metric string) (*domain.QuotaResult, error) {
	const op = "quota.evaluate"

	m, err := s.cfg.metrics.Parse(metric)
	if err != nil {
		return nil, err
	}

	account, err := s.getAccount(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	limit, err := s.effectiveLimit(ctx, account.Tier, m)
	if err != nil {
		return nil, err
	}

	var usage int64
	counter, err := s.store.GetUsageCounter(ctx, repository.GetUsageCounterParams{
		UserID:            userID,
		Metric:            string(m),
		BillingCycleStart: account.Cycle.Start,
	})
	switch {
	case err == nil:
		usage = counter.Count
	case repository.IsNoRows(err):
	default:
		return nil, domain.StorageFailure(err, op, "failed to read usage counter")
	}

	result := domain.NewQuotaResult(userID, m, account.Tier, account.Cycle, usage, limit)
	metrics.QuotaEvaluated(string(m), result.Allowed)

	if !result.Allowed {
		s.logger.Info("quota exceeded",
			"user_id", userID,
			"tier", account.Tier,
			"metric", m,
			"used", usage,
			"limit", limit.String(),
		)
	}

	return result, nil
}

// Increment relies on the store's single-statement upsert; it never reads
// the counter first.
func (s *quotaService) Increment(ctx context.Context, userID uuid.UUID, metric string, amount int64) (*domain.UsageCounter, error) {
	const op = "quota.increment"

	m, err := s.cfg.metrics.Parse(metric)
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, domain.Invalid(op, "amount must not be negative")
	}

	row, err := s.store.IncrementUsageCounter(ctx, repository.IncrementUsageCounterParams{
		UserID: userID,
		Metric: string(m),
		Amount: amount,
	})
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, domain.NotFound(op, "account", userID.String())
		}
		return nil, domain.StorageFailure(err, op, "failed to record usage")
	}

	metrics.UsageRecorded(string(m), amount)
	s.logger.Info("usage recorded",
		"user_id", userID,
		"metric", m,
		"amount", amount,
		"count", row.Count,
	)

	counter := toUsageCounter(row)
	return &counter, nil
}

// Usage evaluates every configured metric in one pass over the cycle's counters.
func (s *quotaService) Usage(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	const op = "quota.usage"

	account, err := s.getAccount(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ListUsageCountersForCycle(ctx, repository.ListUsageCountersForCycleParams{
		UserID:            userID,
		BillingCycleStart: account.Cycle.Start,
	})
	if err != nil {
		return nil, domain.StorageFailure(err, op, "failed to list usage counters")
	}

	usage := make(map[domain.Metric]int64, len(rows))
	for _, row := range rows {
		usage[domain.Metric(row.Metric)] = row.Count
	}

	summary := &domain.UsageSummary{
		UserID: userID,
		Tier:   account.Tier,
		Cycle:  account.Cycle,
	}
	for _, m := range s.cfg.metrics.Sorted() {
		limit, err := s.effectiveLimit(ctx, account.Tier, m)
		if err != nil {
			return nil, err
		}
		summary.Metrics = append(summary.Metrics, *domain.NewQuotaResult(userID, m, account.Tier, account.Cycle, usage[m], limit))
	}

	return summary, nil
}

// History lists counters across cycles.
func (s *quotaService) History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.UsageCounter, error) {
	const op = "quota.history"

	if _, err := s.getAccount(ctx, op, userID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListUsageCountersByUser(ctx, repository.ListUsageCountersByUserParams{
		UserID: userID,
		Limit:  clampListLimit(limit),
	})
	if err != nil {
		return nil, domain.StorageFailure(err, op, "failed to list usage history")
	}

	counters := make([]domain.UsageCounter, len(rows))
	for i, row := range rows {
		counters[i] = toUsageCounter(row)
	}
	return counters, nil
}

// effectiveLimit denies metrics the catalog has no row for.
func (s *quotaService) effectiveLimit(ctx context.Context, tier domain.Tier, metric domain.Metric) (domain.Limit, error) {
	limit, found, err := s.catalog.Lookup(ctx, tier, metric)
	if err != nil {
		return 0, err
	}
	if !found {
		s.logger.Warn("no tier limit configured, denying", "tier", tier, "metric", metric)
		return 0, nil
	}
	return limit, nil
}

func (s *quotaService) getAccount(ctx context.Context, op string, userID uuid.UUID) (*domain.Account, error) {
	row, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, domain.NotFound(op, "account", userID.String())
		}
		return nil, domain.StorageFailure(err, op, "failed to read account")
	}
	return toAccount(row), nil
}
