package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/quotaledger/internal"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to TEST_DATABASE_URL and applies migrations.
func openTestStore(t *testing.T) *repository.SQLStore {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := internal.OpenDB(ctx, "pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, internal.RunMigrations(ctx, db, logger))

	return repository.NewStore(db)
}

func createTestAccount(t *testing.T, store *repository.SQLStore) repository.Account {
	t.Helper()

	start := time.Now().UTC().Truncate(time.Microsecond)
	account, err := store.CreateAccount(context.Background(), repository.CreateAccountParams{
		ID:                uuid.New(),
		SubscriptionTier:  "free",
		BillingCycleStart: start,
		BillingCycleEnd:   start.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return account
}

func TestPostgres_ConcurrentIncrementsConverge(t *testing.T) {
	store := openTestStore(t)
	account := createTestAccount(t, store)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementUsageCounter(ctx, repository.IncrementUsageCounterParams{
				UserID: account.ID,
				Metric: "deals_per_month",
				Amount: 1,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counter, err := store.GetUsageCounter(ctx, repository.GetUsageCounterParams{
		UserID:            account.ID,
		Metric:            "deals_per_month",
		BillingCycleStart: account.BillingCycleStart,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(n), counter.Count)
}

func TestPostgres_IncrementUnknownAccount(t *testing.T) {
	store := openTestStore(t)

	_, err := store.IncrementUsageCounter(context.Background(), repository.IncrementUsageCounterParams{
		UserID: uuid.New(),
		Metric: "deals_per_month",
		Amount: 1,
	})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestPostgres_ExecTxRollsBack(t *testing.T) {
	store := openTestStore(t)
	account := createTestAccount(t, store)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.ExecTx(ctx, func(q repository.QuotaQuerier) error {
		if _, err := q.UpdateAccountTier(ctx, repository.UpdateAccountTierParams{
			ID:               account.ID,
			SubscriptionTier: "pro",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "free", got.SubscriptionTier)
}

func TestPostgres_DuplicateAccountIsUniqueViolation(t *testing.T) {
	store := openTestStore(t)
	account := createTestAccount(t, store)

	_, err := store.CreateAccount(context.Background(), repository.CreateAccountParams{
		ID:                account.ID,
		SubscriptionTier:  "free",
		BillingCycleStart: account.BillingCycleStart,
		BillingCycleEnd:   account.BillingCycleEnd,
	})
	require.Error(t, err)
	assert.True(t, repository.IsUniqueViolation(err))
}

// changeTierConcurrently fires one ChangeTier per target at once and returns
// how many of them reported a change.
func changeTierConcurrently(t *testing.T, subs service.SubscriptionService, userID uuid.UUID, targets []domain.Tier) int {
	t.Helper()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	errs := make(chan error, len(targets))
	for _, tier := range targets {
		wg.Add(1)
		go func(tier domain.Tier) {
			defer wg.Done()
			result, err := subs.ChangeTier(context.Background(), domain.TierChangeParams{
				UserID: userID,
				Tier:   tier,
				Source: domain.TierChangeSourceAPI,
			})
			if err != nil {
				errs <- err
				return
			}
			if result.Changed() {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}(tier)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	return changed
}

func TestPostgres_ConcurrentChangeTierRecordsOneEventPerTransition(t *testing.T) {
	store := openTestStore(t)
	account := createTestAccount(t, store)
	ctx := context.Background()
	subs := service.NewSubscriptionService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	listEvents := func() []repository.SubscriptionEvent {
		events, err := store.ListSubscriptionEventsByUser(ctx, repository.ListSubscriptionEventsByUserParams{
			UserID: account.ID,
			Limit:  100,
		})
		require.NoError(t, err)
		return events
	}

	// Everyone asks for the same tier: only the first to take the row lock
	// sees a change.
	same := make([]domain.Tier, 10)
	for i := range same {
		same[i] = domain.TierPro
	}
	assert.Equal(t, 1, changeTierConcurrently(t, subs, account.ID, same))

	events := listEvents()
	require.Len(t, events, 1)
	assert.Equal(t, string(domain.EventTypeUpgrade), events[0].EventType)
	assert.Equal(t, "free", events[0].PreviousTier)
	assert.Equal(t, "pro", events[0].NewTier)

	// Competing targets: every reported change has exactly one event and the
	// events chain from pro to the final tier.
	var mixed []domain.Tier
	for i := 0; i < 6; i++ {
		mixed = append(mixed, domain.TierEnterprise, domain.TierFree)
	}
	changed := changeTierConcurrently(t, subs, account.ID, mixed)
	require.GreaterOrEqual(t, changed, 1)

	events = listEvents()
	require.Len(t, events, 1+changed)

	final, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)

	// For each tier, arrivals minus departures is +1 for the final tier,
	// -1 for the starting one and 0 otherwise.
	flow := map[string]int{}
	for _, e := range events[:changed] {
		assert.NotEqual(t, e.PreviousTier, e.NewTier)
		flow[e.NewTier]++
		flow[e.PreviousTier]--
	}
	for _, tier := range []string{"free", "pro", "enterprise"} {
		want := 0
		if tier == final.SubscriptionTier {
			want++
		}
		if tier == "pro" {
			want--
		}
		assert.Equal(t, want, flow[tier], tier)
	}
}
