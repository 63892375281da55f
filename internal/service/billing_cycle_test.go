package service

import (
	"context"
	"testing"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := provision(t, f, domain.TierFree)

	f.clock.Advance(72 * time.Hour)
	now := f.clock.Now()

	reset, err := f.billing.ResetCycle(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, now, reset.Cycle.Start)
	assert.Equal(t, now.Add(domain.DefaultBillingCycleLength), reset.Cycle.End)

	_, err = f.billing.ResetCycle(ctx, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestResetCycle_KeepsOldCounters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	account := provision(t, f, domain.TierFree)

	_, err := f.quota.Increment(ctx, account.ID, "deals_per_month", 5)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.billing.ResetCycle(ctx, account.ID)
	require.NoError(t, err)

	result, err := f.quota.Evaluate(ctx, account.ID, "deals_per_month")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(0), result.CurrentUsage)

	history, err := f.quota.History(ctx, account.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(5), history[0].Count)
	assert.Equal(t, account.Cycle.Start, history[0].Cycle.Start)
}

func TestAdvanceIfExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithCycleLength(24*time.Hour))
	account := provision(t, f, domain.TierPro)

	got, advanced, err := f.billing.AdvanceIfExpired(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Equal(t, account.Cycle, got.Cycle)

	expired, err := f.billing.ListExpired(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	f.clock.Advance(25 * time.Hour)

	expired, err = f.billing.ListExpired(ctx, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, account.ID, expired[0].ID)

	got, advanced, err = f.billing.AdvanceIfExpired(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, f.clock.Now(), got.Cycle.Start)

	// A duplicate sweep job finds nothing to do
	_, advanced, err = f.billing.AdvanceIfExpired(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, advanced)

	_, _, err = f.billing.AdvanceIfExpired(ctx, uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
