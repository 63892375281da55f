package service

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// LimitCache caches catalog reads in front of the store.
//
// Each key carries a generation that Invalidate advances. Get reports the
// generation seen on a miss, and Fill stores a lookup only while that
// generation is still current, so a read that raced a catalog write never
// caches the old value. Callers treat a failed Get as a miss and failed
// Fill or Invalidate calls as best effort.
type LimitCache interface {
	Get(ctx context.Context, tier domain.Tier, metric domain.Metric) (lookup domain.LimitLookup, hit bool, gen int64, err error)
	Fill(ctx context.Context, tier domain.Tier, metric domain.Metric, gen int64, lookup domain.LimitLookup) (bool, error)
	Invalidate(ctx context.Context, tier domain.Tier, metric domain.Metric) error
}

// config holds settings shared by the quota services.
type config struct {
	now         func() time.Time
	metrics     domain.MetricSet
	cycleLength time.Duration
	trialLength time.Duration
	cache       LimitCache
}

// Option configures a service.
type Option func(*config)

// WithClock sets the time source. Mostly useful in tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithMetrics sets the allow-list of metric names.
func WithMetrics(set domain.MetricSet) Option {
	return func(c *config) {
		if len(set) > 0 {
			c.metrics = set
		}
	}
}

// WithCycleLength sets the billing cycle length.
func WithCycleLength(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.cycleLength = d
		}
	}
}

// WithTrialLength sets the trial granted to new free accounts.
func WithTrialLength(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.trialLength = d
		}
	}
}

// WithLimitCache puts a cache in front of catalog lookups.
func WithLimitCache(cache LimitCache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

func newConfig(opts []Option) config {
	c := config{
		now:         time.Now,
		metrics:     domain.DefaultMetricSet(),
		cycleLength: domain.DefaultBillingCycleLength,
		trialLength: domain.DefaultTrialLength,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// timestamp returns the current time at the precision Postgres stores.
func (c config) timestamp() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}

// storageError passes domain errors through and wraps anything else as a
// storage failure.
func storageError(err error, op, message string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.StorageFailure(err, op, message)
}

// =============================================================================
// Row conversion
// =============================================================================

func toAccount(a repository.Account) *domain.Account {
	return &domain.Account{
		ID:               a.ID,
		Tier:             domain.Tier(a.SubscriptionTier),
		Cycle:            domain.BillingCycle{Start: a.BillingCycleStart.UTC(), End: a.BillingCycleEnd.UTC()},
		TrialEnd:         domain.NullTimeValue(a.TrialEnd),
		StripeCustomerID: domain.NullStringValue(a.StripeCustomerID),
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toUsageCounter(c repository.UsageCounter) domain.UsageCounter {
	return domain.UsageCounter{
		UserID:    c.UserID,
		Metric:    domain.Metric(c.Metric),
		Cycle:     domain.BillingCycle{Start: c.BillingCycleStart.UTC(), End: c.BillingCycleEnd.UTC()},
		Count:     c.Count,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toSubscriptionEvent(e repository.SubscriptionEvent) domain.SubscriptionEvent {
	event := domain.SubscriptionEvent{
		ID:           e.ID,
		UserID:       e.UserID,
		EventType:    domain.SubscriptionEventType(e.EventType),
		PreviousTier: domain.Tier(e.PreviousTier),
		NewTier:      domain.Tier(e.NewTier),
		CreatedAt:    e.CreatedAt,
	}
	if e.Metadata.Valid {
		event.Metadata = e.Metadata.RawMessage
	}
	return event
}

func toTierLimit(l repository.TierLimit) domain.TierLimit {
	return domain.TierLimit{
		Tier:      domain.Tier(l.Tier),
		Metric:    domain.Metric(l.Metric),
		Limit:     domain.Limit(l.LimitValue),
		UpdatedAt: l.UpdatedAt,
	}
}

// clampListLimit bounds a caller-supplied page size.
func clampListLimit(n int) int32 {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	default:
		return int32(n)
	}
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)
