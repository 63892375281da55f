package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/DukeRupert/quotaledger/internal/repository/memstore"
)

// testClock is a settable clock shared by the store and the services.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// defaultCatalog matches the rows seeded by the migrations.
var defaultCatalog = []domain.TierLimit{
	{Tier: domain.TierFree, Metric: domain.MetricDealsPerMonth, Limit: 5},
	{Tier: domain.TierFree, Metric: domain.MetricAIQueriesPerMonth, Limit: 10},
	{Tier: domain.TierFree, Metric: domain.MetricAPICallsPerMonth, Limit: 0},
	{Tier: domain.TierPro, Metric: domain.MetricDealsPerMonth, Limit: 100},
	{Tier: domain.TierPro, Metric: domain.MetricAIQueriesPerMonth, Limit: 500},
	{Tier: domain.TierPro, Metric: domain.MetricAPICallsPerMonth, Limit: 10000},
	{Tier: domain.TierEnterprise, Metric: domain.MetricDealsPerMonth, Limit: domain.Unlimited},
	{Tier: domain.TierEnterprise, Metric: domain.MetricAIQueriesPerMonth, Limit: domain.Unlimited},
	{Tier: domain.TierEnterprise, Metric: domain.MetricAPICallsPerMonth, Limit: domain.Unlimited},
}

type fixture struct {
	clock         *testClock
	store         *memstore.Store
	catalog       CatalogService
	quota         QuotaService
	billing       BillingCycleService
	subscriptions SubscriptionService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	clock := newTestClock()
	store := memstore.New(memstore.WithClock(clock.Now))
	logger := discardLogger()
	opts = append([]Option{WithClock(clock.Now)}, opts...)

	for _, l := range defaultCatalog {
		_, err := store.UpsertTierLimit(context.Background(), repository.UpsertTierLimitParams{
			Tier:       string(l.Tier),
			Metric:     string(l.Metric),
			LimitValue: int64(l.Limit),
		})
		if err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}

	catalog := NewCatalogService(store, logger, opts...)

	return &fixture{
		clock:         clock,
		store:         store,
		catalog:       catalog,
		quota:         NewQuotaService(store, catalog, logger, opts...),
		billing:       NewBillingCycleService(store, logger, opts...),
		subscriptions: NewSubscriptionService(store, logger, opts...),
	}
}
