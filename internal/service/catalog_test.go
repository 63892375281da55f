package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/DukeRupert/quotaledger/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is a LimitCache that records calls and can be made to fail.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]domain.LimitLookup
	gens    map[string]int64
	fail    bool
	gets    int
	refused int
}

func newMapCache() *mapCache {
	return &mapCache{
		entries: make(map[string]domain.LimitLookup),
		gens:    make(map[string]int64),
	}
}

func (c *mapCache) key(tier domain.Tier, metric domain.Metric) string {
	return string(tier) + ":" + string(metric)
}

func (c *mapCache) Get(ctx context.Context, tier domain.Tier, metric domain.Metric) (domain.LimitLookup, bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail {
		return domain.LimitLookup{}, false, 0, errors.New("cache down")
	}
	k := c.key(tier, metric)
	l, ok := c.entries[k]
	return l, ok, c.gens[k], nil
}

func (c *mapCache) Fill(ctx context.Context, tier domain.Tier, metric domain.Metric, gen int64, lookup domain.LimitLookup) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return false, errors.New("cache down")
	}
	k := c.key(tier, metric)
	if c.gens[k] != gen {
		c.refused++
		return false, nil
	}
	c.entries[k] = lookup
	return true, nil
}

func (c *mapCache) Invalidate(ctx context.Context, tier domain.Tier, metric domain.Metric) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	k := c.key(tier, metric)
	c.gens[k]++
	delete(c.entries, k)
	return nil
}

// racingStore runs afterRead once, right after a tier limit has been read
// and before the caller sees the row.
type racingStore struct {
	*memstore.Store
	afterRead func()
}

func (s *racingStore) GetTierLimit(ctx context.Context, arg repository.GetTierLimitParams) (repository.TierLimit, error) {
	row, err := s.Store.GetTierLimit(ctx, arg)
	if hook := s.afterRead; hook != nil {
		s.afterRead = nil
		hook()
	}
	return row, err
}

func TestLimitFor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	limit, err := f.catalog.LimitFor(ctx, domain.TierFree, domain.MetricDealsPerMonth)
	require.NoError(t, err)
	assert.Equal(t, domain.Limit(5), limit)

	limit, err = f.catalog.LimitFor(ctx, domain.TierEnterprise, domain.MetricDealsPerMonth)
	require.NoError(t, err)
	assert.True(t, limit.IsUnlimited())

	// No row reads as unlimited through the raw catalog contract
	limit, err = f.catalog.LimitFor(ctx, domain.TierPro, domain.MetricTeamMembers)
	require.NoError(t, err)
	assert.True(t, limit.IsUnlimited())

	_, found, err := f.catalog.Lookup(ctx, domain.TierPro, domain.MetricTeamMembers)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = f.catalog.LimitFor(ctx, "gold", domain.MetricDealsPerMonth)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestSetAndDeleteLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	saved, err := f.catalog.SetLimit(ctx, domain.TierPro, domain.MetricTeamMembers, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.Limit(5), saved.Limit)

	limit, err := f.catalog.LimitFor(ctx, domain.TierPro, domain.MetricTeamMembers)
	require.NoError(t, err)
	assert.Equal(t, domain.Limit(5), limit)

	_, err = f.catalog.SetLimit(ctx, domain.TierPro, domain.MetricTeamMembers, -2)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = f.catalog.SetLimit(ctx, domain.TierPro, "parking_spots", 1)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	require.NoError(t, f.catalog.DeleteLimit(ctx, domain.TierPro, domain.MetricTeamMembers))

	err = f.catalog.DeleteLimit(ctx, domain.TierPro, domain.MetricTeamMembers)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestImport_IsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.catalog.Import(ctx, []domain.TierLimit{
		{Tier: domain.TierFree, Metric: domain.MetricStorageGB, Limit: 2},
		{Tier: domain.TierFree, Metric: domain.MetricTeamMembers, Limit: -5},
	})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, found, err := f.catalog.Lookup(ctx, domain.TierFree, domain.MetricStorageGB)
	require.NoError(t, err)
	assert.False(t, found)

	n, err := f.catalog.Import(ctx, []domain.TierLimit{
		{Tier: domain.TierFree, Metric: domain.MetricStorageGB, Limit: 2},
		{Tier: domain.TierFree, Metric: domain.MetricDealsPerMonth, Limit: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	limits, err := f.catalog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, limits, len(defaultCatalog)+1)
	assert.Equal(t, domain.TierFree, limits[0].Tier)
}

func TestLookup_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	f := newFixture(t, WithLimitCache(cache))

	limit, found, err := f.catalog.Lookup(ctx, domain.TierFree, domain.MetricDealsPerMonth)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.Limit(5), limit)
	assert.Contains(t, cache.entries, "free:deals_per_month")

	// Misses are cached as well
	_, found, err = f.catalog.Lookup(ctx, domain.TierFree, domain.MetricTeamMembers)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, domain.LimitLookup{}, cache.entries["free:team_members"])

	// Writes invalidate
	_, err = f.catalog.SetLimit(ctx, domain.TierFree, domain.MetricDealsPerMonth, 8)
	require.NoError(t, err)
	assert.NotContains(t, cache.entries, "free:deals_per_month")

	limit, err = f.catalog.LimitFor(ctx, domain.TierFree, domain.MetricDealsPerMonth)
	require.NoError(t, err)
	assert.Equal(t, domain.Limit(8), limit)
}

func TestLookup_CacheFailureFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	cache.fail = true
	f := newFixture(t, WithLimitCache(cache))

	limit, found, err := f.catalog.Lookup(ctx, domain.TierPro, domain.MetricDealsPerMonth)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.Limit(100), limit)
	assert.Equal(t, 1, cache.gets)

	_, err = f.catalog.SetLimit(ctx, domain.TierPro, domain.MetricDealsPerMonth, 150)
	require.NoError(t, err)
}

func TestLookup_WriteDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Store: memstore.New()}
	_, err := store.UpsertTierLimit(ctx, repository.UpsertTierLimitParams{
		Tier: string(domain.TierFree), Metric: string(domain.MetricDealsPerMonth), LimitValue: 5,
	})
	require.NoError(t, err)

	cache := newMapCache()
	catalog := NewCatalogService(store, discardLogger(), WithLimitCache(cache))

	// An admin raises the limit after the lookup has read the old row.
	store.afterRead = func() {
		_, err := catalog.SetLimit(ctx, domain.TierFree, domain.MetricDealsPerMonth, 20)
		require.NoError(t, err)
	}

	limit, _, err := catalog.Lookup(ctx, domain.TierFree, domain.MetricDealsPerMonth)
	require.NoError(t, err)
	assert.Equal(t, domain.Limit(5), limit, "the in-flight lookup still answers with what it read")
	assert.Equal(t, 1, cache.refused)
	assert.NotContains(t, cache.entries, "free:deals_per_month")

	limit, err = catalog.LimitFor(ctx, domain.TierFree, domain.MetricDealsPerMonth)
	require.NoError(t, err)
	assert.Equal(t, domain.Limit(20), limit)
	assert.Equal(t, domain.LimitLookup{Limit: 20, Found: true}, cache.entries["free:deals_per_month"])
}
