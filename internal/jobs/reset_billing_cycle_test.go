package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository/memstore"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/DukeRupert/quotaledger/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	now     time.Time
	subs    service.SubscriptionService
	cycles  service.BillingCycleService
	handler *ResetBillingCycleHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New(memstore.WithClock(clock))
	f.subs = service.NewSubscriptionService(store, logger, service.WithClock(clock))
	f.cycles = service.NewBillingCycleService(store, logger, service.WithClock(clock))
	f.handler = NewResetBillingCycleHandler(f.cycles, logger)
	return f
}

func payload(t *testing.T, userID uuid.UUID, onlyIfExpired bool) []byte {
	t.Helper()
	b, err := json.Marshal(worker.ResetBillingCyclePayload{UserID: userID, OnlyIfExpired: onlyIfExpired})
	require.NoError(t, err)
	return b
}

func TestResetBillingCycleHandler_Forced(t *testing.T) {
	f := newFixture(t)
	acct, err := f.subs.Provision(context.Background(), domain.ProvisionAccountParams{UserID: uuid.New()})
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	require.NoError(t, f.handler.Handle(context.Background(), payload(t, acct.ID, false)))

	got, err := f.subs.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now, got.Cycle.Start)
}

func TestResetBillingCycleHandler_OnlyIfExpired(t *testing.T) {
	f := newFixture(t)
	acct, err := f.subs.Provision(context.Background(), domain.ProvisionAccountParams{UserID: uuid.New()})
	require.NoError(t, err)
	originalStart := acct.Cycle.Start

	// Still running: no change
	require.NoError(t, f.handler.Handle(context.Background(), payload(t, acct.ID, true)))
	got, err := f.subs.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, originalStart, got.Cycle.Start)

	// Past the end: advanced
	f.now = acct.Cycle.End.Add(time.Minute)
	require.NoError(t, f.handler.Handle(context.Background(), payload(t, acct.ID, true)))
	got, err = f.subs.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Cycle.Start.After(originalStart))
}

func TestResetBillingCycleHandler_PermanentFailures(t *testing.T) {
	f := newFixture(t)

	err := f.handler.Handle(context.Background(), []byte("{not json"))
	assert.True(t, worker.IsPermanent(err))

	err = f.handler.Handle(context.Background(), []byte(`{"only_if_expired":true}`))
	assert.True(t, worker.IsPermanent(err))

	err = f.handler.Handle(context.Background(), payload(t, uuid.New(), false))
	assert.True(t, worker.IsPermanent(err))
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestResetBillingCycleHandler_Type(t *testing.T) {
	assert.Equal(t, worker.JobTypeResetBillingCycle, newFixture(t).handler.Type())
}
