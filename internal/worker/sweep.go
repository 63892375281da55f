package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

// ExpiredCycleLister finds accounts whose billing cycle has ended.
type ExpiredCycleLister interface {
	ListExpired(ctx context.Context, limit int) ([]domain.Account, error)
}

// sweepBatchSize bounds how many resets one sweep enqueues.
const sweepBatchSize = 500

// Sweeper periodically enqueues conditional resets for accounts whose
// billing cycle ended without a renewal webhook.
type Sweeper struct {
	lister   ExpiredCycleLister
	queue    Enqueuer
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(lister ExpiredCycleLister, queue Enqueuer, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		lister:   lister,
		queue:    queue,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps immediately and then on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("billing cycle sweep started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("billing cycle sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce enqueues one conditional reset per expired account and returns
// how many were enqueued. Each job re-checks expiry when it runs.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	accounts, err := s.lister.ListExpired(ctx, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, acct := range accounts {
		if _, err := EnqueueResetBillingCycle(ctx, s.queue, acct.ID, true); err != nil {
			s.logger.Error("failed to enqueue billing cycle reset", "user_id", acct.ID, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("enqueued billing cycle resets", "count", enqueued)
	}
	return enqueued, nil
}
