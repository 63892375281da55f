// Package memstore provides an in-memory repository.Store.
//
// It mirrors the constraint and upsert semantics of the Postgres schema so
// services can be exercised without a database. All state sits behind one
// mutex; ExecTx holds it for the whole callback and restores a snapshot when
// the callback fails.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type limitKey struct {
	tier   string
	metric string
}

type counterKey struct {
	userID uuid.UUID
	metric string
	start  int64
}

type state struct {
	accounts map[uuid.UUID]repository.Account
	limits   map[limitKey]repository.TierLimit
	counters map[counterKey]repository.UsageCounter
	events   []repository.SubscriptionEvent
}

func newState() *state {
	return &state{
		accounts: make(map[uuid.UUID]repository.Account),
		limits:   make(map[limitKey]repository.TierLimit),
		counters: make(map[counterKey]repository.UsageCounter),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.limits {
		c.limits[k] = v
	}
	for k, v := range st.counters {
		c.counters[k] = v
	}
	c.events = append(c.events, st.events...)
	return c
}

// Store is a mutex-guarded in-memory implementation of repository.Store.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for created_at and updated_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		st:  newState(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.Store = (*Store)(nil)

func (s *Store) view() *view {
	return &view{st: s.st, now: s.now}
}

// ExecTx runs fn with exclusive access to the store. Writes made by fn are
// discarded when it returns an error.
func (s *Store) ExecTx(ctx context.Context, fn func(repository.QuotaQuerier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(s.view()); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) AdvanceExpiredBillingCycle(ctx context.Context, arg repository.AdvanceExpiredBillingCycleParams) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AdvanceExpiredBillingCycle(ctx, arg)
}

func (s *Store) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateAccount(ctx, arg)
}

func (s *Store) CreateSubscriptionEvent(ctx context.Context, arg repository.CreateSubscriptionEventParams) (repository.SubscriptionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateSubscriptionEvent(ctx, arg)
}

func (s *Store) DeleteTierLimit(ctx context.Context, arg repository.DeleteTierLimitParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteTierLimit(ctx, arg)
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetAccount(ctx, id)
}

func (s *Store) GetAccountByStripeCustomerID(ctx context.Context, stripeCustomerID sql.NullString) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetAccountByStripeCustomerID(ctx, stripeCustomerID)
}

func (s *Store) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetAccountForUpdate(ctx, id)
}

func (s *Store) GetTierLimit(ctx context.Context, arg repository.GetTierLimitParams) (repository.TierLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetTierLimit(ctx, arg)
}

func (s *Store) GetUsageCounter(ctx context.Context, arg repository.GetUsageCounterParams) (repository.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetUsageCounter(ctx, arg)
}

func (s *Store) IncrementUsageCounter(ctx context.Context, arg repository.IncrementUsageCounterParams) (repository.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().IncrementUsageCounter(ctx, arg)
}

func (s *Store) ListAccountsWithExpiredCycle(ctx context.Context, arg repository.ListAccountsWithExpiredCycleParams) ([]repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListAccountsWithExpiredCycle(ctx, arg)
}

func (s *Store) ListSubscriptionEventsByUser(ctx context.Context, arg repository.ListSubscriptionEventsByUserParams) ([]repository.SubscriptionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListSubscriptionEventsByUser(ctx, arg)
}

func (s *Store) ListTierLimits(ctx context.Context) ([]repository.TierLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListTierLimits(ctx)
}

func (s *Store) ListUsageCountersByUser(ctx context.Context, arg repository.ListUsageCountersByUserParams) ([]repository.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListUsageCountersByUser(ctx, arg)
}

func (s *Store) ListUsageCountersForCycle(ctx context.Context, arg repository.ListUsageCountersForCycleParams) ([]repository.UsageCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListUsageCountersForCycle(ctx, arg)
}

func (s *Store) SetAccountStripeCustomer(ctx context.Context, arg repository.SetAccountStripeCustomerParams) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SetAccountStripeCustomer(ctx, arg)
}

func (s *Store) UpdateAccountBillingCycle(ctx context.Context, arg repository.UpdateAccountBillingCycleParams) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateAccountBillingCycle(ctx, arg)
}

func (s *Store) UpdateAccountTier(ctx context.Context, arg repository.UpdateAccountTierParams) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateAccountTier(ctx, arg)
}

func (s *Store) UpsertTierLimit(ctx context.Context, arg repository.UpsertTierLimitParams) (repository.TierLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpsertTierLimit(ctx, arg)
}

// =============================================================================
// Unlocked view
// =============================================================================

// view implements repository.QuotaQuerier on state the caller has locked.
type view struct {
	st  *state
	now func() time.Time
}

func (v *view) timestamp() time.Time {
	return v.now().UTC().Truncate(time.Microsecond)
}

func violation(code, constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           code,
		Message:        "violates constraint " + constraint,
		ConstraintName: constraint,
	}
}

func validTier(tier string) bool {
	return domain.Tier(tier).IsValid()
}

func cycleOf(a repository.Account) domain.BillingCycle {
	return domain.BillingCycle{Start: a.BillingCycleStart, End: a.BillingCycleEnd}
}

func (v *view) AdvanceExpiredBillingCycle(ctx context.Context, arg repository.AdvanceExpiredBillingCycleParams) (repository.Account, error) {
	a, ok := v.st.accounts[arg.ID]
	if !ok || !cycleOf(a).HasEnded(arg.Now) {
		return repository.Account{}, sql.ErrNoRows
	}
	return v.UpdateAccountBillingCycle(ctx, repository.UpdateAccountBillingCycleParams{
		ID:                arg.ID,
		BillingCycleStart: arg.Now,
		BillingCycleEnd:   arg.CycleEnd,
	})
}

func (v *view) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (repository.Account, error) {
	if _, exists := v.st.accounts[arg.ID]; exists {
		return repository.Account{}, violation("23505", "accounts_pkey")
	}
	if !validTier(arg.SubscriptionTier) {
		return repository.Account{}, violation("23514", "accounts_subscription_tier_check")
	}
	if !arg.BillingCycleStart.Before(arg.BillingCycleEnd) {
		return repository.Account{}, violation("23514", "accounts_billing_cycle_order")
	}
	if arg.StripeCustomerID.Valid && v.stripeCustomerTaken(arg.StripeCustomerID.String, arg.ID) {
		return repository.Account{}, violation("23505", "accounts_stripe_customer_id_key")
	}

	ts := v.timestamp()
	a := repository.Account{
		ID:                arg.ID,
		SubscriptionTier:  arg.SubscriptionTier,
		BillingCycleStart: arg.BillingCycleStart,
		BillingCycleEnd:   arg.BillingCycleEnd,
		TrialEnd:          arg.TrialEnd,
		StripeCustomerID:  arg.StripeCustomerID,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
	v.st.accounts[a.ID] = a
	return a, nil
}

func (v *view) stripeCustomerTaken(customerID string, owner uuid.UUID) bool {
	for id, a := range v.st.accounts {
		if id != owner && a.StripeCustomerID.Valid && a.StripeCustomerID.String == customerID {
			return true
		}
	}
	return false
}

func (v *view) CreateSubscriptionEvent(ctx context.Context, arg repository.CreateSubscriptionEventParams) (repository.SubscriptionEvent, error) {
	if _, ok := v.st.accounts[arg.UserID]; !ok {
		return repository.SubscriptionEvent{}, violation("23503", "subscription_events_user_id_fkey")
	}
	if arg.PreviousTier == arg.NewTier {
		return repository.SubscriptionEvent{}, violation("23514", "subscription_events_tier_differs")
	}
	if !domain.SubscriptionEventType(arg.EventType).IsValid() {
		return repository.SubscriptionEvent{}, violation("23514", "subscription_events_event_type_check")
	}

	e := repository.SubscriptionEvent{
		ID:           uuid.New(),
		UserID:       arg.UserID,
		EventType:    arg.EventType,
		PreviousTier: arg.PreviousTier,
		NewTier:      arg.NewTier,
		Metadata:     arg.Metadata,
		CreatedAt:    v.timestamp(),
	}
	v.st.events = append(v.st.events, e)
	return e, nil
}

func (v *view) DeleteTierLimit(ctx context.Context, arg repository.DeleteTierLimitParams) (int64, error) {
	key := limitKey{tier: arg.Tier, metric: arg.Metric}
	if _, ok := v.st.limits[key]; !ok {
		return 0, nil
	}
	delete(v.st.limits, key)
	return 1, nil
}

func (v *view) GetAccount(ctx context.Context, id uuid.UUID) (repository.Account, error) {
	a, ok := v.st.accounts[id]
	if !ok {
		return repository.Account{}, sql.ErrNoRows
	}
	return a, nil
}

func (v *view) GetAccountByStripeCustomerID(ctx context.Context, stripeCustomerID sql.NullString) (repository.Account, error) {
	if !stripeCustomerID.Valid {
		return repository.Account{}, sql.ErrNoRows
	}
	for _, a := range v.st.accounts {
		if a.StripeCustomerID.Valid && a.StripeCustomerID.String == stripeCustomerID.String {
			return a, nil
		}
	}
	return repository.Account{}, sql.ErrNoRows
}

// GetAccountForUpdate needs no row lock; the store mutex already serializes writers.
func (v *view) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (repository.Account, error) {
	return v.GetAccount(ctx, id)
}

func (v *view) GetTierLimit(ctx context.Context, arg repository.GetTierLimitParams) (repository.TierLimit, error) {
	l, ok := v.st.limits[limitKey{tier: arg.Tier, metric: arg.Metric}]
	if !ok {
		return repository.TierLimit{}, sql.ErrNoRows
	}
	return l, nil
}

func (v *view) GetUsageCounter(ctx context.Context, arg repository.GetUsageCounterParams) (repository.UsageCounter, error) {
	c, ok := v.st.counters[counterKey{userID: arg.UserID, metric: arg.Metric, start: arg.BillingCycleStart.UnixMicro()}]
	if !ok {
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	return c, nil
}

func (v *view) IncrementUsageCounter(ctx context.Context, arg repository.IncrementUsageCounterParams) (repository.UsageCounter, error) {
	a, ok := v.st.accounts[arg.UserID]
	if !ok {
		return repository.UsageCounter{}, sql.ErrNoRows
	}

	key := counterKey{userID: a.ID, metric: arg.Metric, start: a.BillingCycleStart.UnixMicro()}
	ts := v.timestamp()

	c, exists := v.st.counters[key]
	if !exists {
		c = repository.UsageCounter{
			UserID:            a.ID,
			Metric:            arg.Metric,
			BillingCycleStart: a.BillingCycleStart,
			BillingCycleEnd:   a.BillingCycleEnd,
			CreatedAt:         ts,
		}
	}
	if c.Count+arg.Amount < 0 {
		return repository.UsageCounter{}, violation("23514", "usage_counters_count_check")
	}
	c.Count += arg.Amount
	c.UpdatedAt = ts

	v.st.counters[key] = c
	return c, nil
}

func (v *view) ListAccountsWithExpiredCycle(ctx context.Context, arg repository.ListAccountsWithExpiredCycleParams) ([]repository.Account, error) {
	var out []repository.Account
	for _, a := range v.st.accounts {
		if cycleOf(a).HasEnded(arg.Now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BillingCycleEnd.Before(out[j].BillingCycleEnd)
	})
	if int(arg.MaxResults) < len(out) {
		out = out[:arg.MaxResults]
	}
	return out, nil
}

func (v *view) ListSubscriptionEventsByUser(ctx context.Context, arg repository.ListSubscriptionEventsByUserParams) ([]repository.SubscriptionEvent, error) {
	var out []repository.SubscriptionEvent
	// Newest first; insertion order breaks created_at ties.
	for i := len(v.st.events) - 1; i >= 0 && len(out) < int(arg.Limit); i-- {
		if v.st.events[i].UserID == arg.UserID {
			out = append(out, v.st.events[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

var tierRank = map[string]int{"free": 0, "pro": 1, "enterprise": 2}

func (v *view) ListTierLimits(ctx context.Context) ([]repository.TierLimit, error) {
	out := make([]repository.TierLimit, 0, len(v.st.limits))
	for _, l := range v.st.limits {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return tierRank[out[i].Tier] < tierRank[out[j].Tier]
		}
		return out[i].Metric < out[j].Metric
	})
	return out, nil
}

func (v *view) ListUsageCountersByUser(ctx context.Context, arg repository.ListUsageCountersByUserParams) ([]repository.UsageCounter, error) {
	var out []repository.UsageCounter
	for k, c := range v.st.counters {
		if k.userID == arg.UserID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BillingCycleStart.Equal(out[j].BillingCycleStart) {
			return out[i].BillingCycleStart.After(out[j].BillingCycleStart)
		}
		return out[i].Metric < out[j].Metric
	})
	if int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (v *view) ListUsageCountersForCycle(ctx context.Context, arg repository.ListUsageCountersForCycleParams) ([]repository.UsageCounter, error) {
	var out []repository.UsageCounter
	start := arg.BillingCycleStart.UnixMicro()
	for k, c := range v.st.counters {
		if k.userID == arg.UserID && k.start == start {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metric < out[j].Metric
	})
	return out, nil
}

func (v *view) SetAccountStripeCustomer(ctx context.Context, arg repository.SetAccountStripeCustomerParams) (repository.Account, error) {
	a, ok := v.st.accounts[arg.ID]
	if !ok {
		return repository.Account{}, sql.ErrNoRows
	}
	if arg.StripeCustomerID.Valid && v.stripeCustomerTaken(arg.StripeCustomerID.String, arg.ID) {
		return repository.Account{}, violation("23505", "accounts_stripe_customer_id_key")
	}
	a.StripeCustomerID = arg.StripeCustomerID
	a.UpdatedAt = v.timestamp()
	v.st.accounts[a.ID] = a
	return a, nil
}

func (v *view) UpdateAccountBillingCycle(ctx context.Context, arg repository.UpdateAccountBillingCycleParams) (repository.Account, error) {
	a, ok := v.st.accounts[arg.ID]
	if !ok {
		return repository.Account{}, sql.ErrNoRows
	}
	if !arg.BillingCycleStart.Before(arg.BillingCycleEnd) {
		return repository.Account{}, violation("23514", "accounts_billing_cycle_order")
	}
	a.BillingCycleStart = arg.BillingCycleStart
	a.BillingCycleEnd = arg.BillingCycleEnd
	a.UpdatedAt = v.timestamp()
	v.st.accounts[a.ID] = a
	return a, nil
}

func (v *view) UpdateAccountTier(ctx context.Context, arg repository.UpdateAccountTierParams) (repository.Account, error) {
	a, ok := v.st.accounts[arg.ID]
	if !ok {
		return repository.Account{}, sql.ErrNoRows
	}
	if !validTier(arg.SubscriptionTier) {
		return repository.Account{}, violation("23514", "accounts_subscription_tier_check")
	}
	a.SubscriptionTier = arg.SubscriptionTier
	a.UpdatedAt = v.timestamp()
	v.st.accounts[a.ID] = a
	return a, nil
}

func (v *view) UpsertTierLimit(ctx context.Context, arg repository.UpsertTierLimitParams) (repository.TierLimit, error) {
	if !validTier(arg.Tier) {
		return repository.TierLimit{}, violation("23514", "tier_limits_tier_check")
	}
	if arg.LimitValue < -1 {
		return repository.TierLimit{}, violation("23514", "tier_limits_limit_value_check")
	}

	key := limitKey{tier: arg.Tier, metric: arg.Metric}
	ts := v.timestamp()

	l, exists := v.st.limits[key]
	if !exists {
		l = repository.TierLimit{Tier: arg.Tier, Metric: arg.Metric, CreatedAt: ts}
	}
	l.LimitValue = arg.LimitValue
	l.UpdatedAt = ts

	v.st.limits[key] = l
	return l, nil
}
