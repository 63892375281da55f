package service

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/google/uuid"
)

// BillingCycleService rolls accounts into a new metering window.
// Counters of earlier cycles are kept; a new cycle simply starts a new
// counter lineage.
type BillingCycleService interface {
	// ResetCycle starts a new cycle now, regardless of the current one.
	// Returns domain.ENOTFOUND if the account does not exist.
	ResetCycle(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// AdvanceIfExpired starts a new cycle only if the current one has ended.
	// The bool reports whether the account was advanced.
	AdvanceIfExpired(ctx context.Context, userID uuid.UUID) (*domain.Account, bool, error)

	// ListExpired returns up to limit accounts whose cycle has ended,
	// oldest end first.
	ListExpired(ctx context.Context, limit int) ([]domain.Account, error)
}

type billingCycleService struct {
	store  repository.Store
	logger *slog.Logger
	cfg    config
}

// NewBillingCycleService creates a new BillingCycleService.
func NewBillingCycleService(store repository.Store, logger *slog.Logger, opts ...Option) BillingCycleService {
	return &billingCycleService{
		store:  store,
		logger: logger,
		cfg:    newConfig(opts),
	}
}

func (s *billingCycleService) ResetCycle(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	const op = "billing_cycle.reset"

	cycle := domain.NewBillingCycle(s.cfg.timestamp(), s.cfg.cycleLength)
	row, err := s.store.UpdateAccountBillingCycle(ctx, repository.UpdateAccountBillingCycleParams{
		ID:                userID,
		BillingCycleStart: cycle.Start,
		BillingCycleEnd:   cycle.End,
	})
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, domain.NotFound(op, "account", userID.String())
		}
		return nil, domain.StorageFailure(err, op, "failed to reset billing cycle")
	}

	metrics.BillingCycleResetsTotal.WithLabelValues("forced").Inc()
	s.logger.Info("billing cycle reset",
		"user_id", userID,
		"cycle_start", cycle.Start,
		"cycle_end", cycle.End,
	)

	return toAccount(row), nil
}

func (s *billingCycleService) AdvanceIfExpired(ctx context.Context, userID uuid.UUID) (*domain.Account, bool, error) {
	const op = "billing_cycle.advance"

	cycle := domain.NewBillingCycle(s.cfg.timestamp(), s.cfg.cycleLength)
	row, err := s.store.AdvanceExpiredBillingCycle(ctx, repository.AdvanceExpiredBillingCycleParams{
		ID:       userID,
		Now:      cycle.Start,
		CycleEnd: cycle.End,
	})
	if err == nil {
		metrics.BillingCycleResetsTotal.WithLabelValues("expired").Inc()
		s.logger.Info("billing cycle advanced",
			"user_id", userID,
			"cycle_start", cycle.Start,
			"cycle_end", cycle.End,
		)
		return toAccount(row), true, nil
	}
	if !repository.IsNoRows(err) {
		return nil, false, domain.StorageFailure(err, op, "failed to advance billing cycle")
	}

	// No row updated: either the cycle is still running or the account is gone.
	current, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, false, domain.NotFound(op, "account", userID.String())
		}
		return nil, false, domain.StorageFailure(err, op, "failed to read account")
	}
	return toAccount(current), false, nil
}

func (s *billingCycleService) ListExpired(ctx context.Context, limit int) ([]domain.Account, error) {
	const op = "billing_cycle.list_expired"

	rows, err := s.store.ListAccountsWithExpiredCycle(ctx, repository.ListAccountsWithExpiredCycleParams{
		Now:        s.cfg.timestamp(),
		MaxResults: clampListLimit(limit),
	})
	if err != nil {
		return nil, domain.StorageFailure(err, op, "failed to list expired billing cycles")
	}

	accounts := make([]domain.Account, len(rows))
	for i, row := range rows {
		accounts[i] = *toAccount(row)
	}
	return accounts, nil
}
