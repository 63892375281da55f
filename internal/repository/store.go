package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QuotaQuerier is the subset of Querier used by the quota services.
// It is satisfied by *Queries and by the in-memory store in memstore.
type QuotaQuerier interface {
	AdvanceExpiredBillingCycle(ctx context.Context, arg AdvanceExpiredBillingCycleParams) (Account, error)
	CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error)
	CreateSubscriptionEvent(ctx context.Context, arg CreateSubscriptionEventParams) (SubscriptionEvent, error)
	DeleteTierLimit(ctx context.Context, arg DeleteTierLimitParams) (int64, error)
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	GetAccountByStripeCustomerID(ctx context.Context, stripeCustomerID sql.NullString) (Account, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (Account, error)
	GetTierLimit(ctx context.Context, arg GetTierLimitParams) (TierLimit, error)
	GetUsageCounter(ctx context.Context, arg GetUsageCounterParams) (UsageCounter, error)
	IncrementUsageCounter(ctx context.Context, arg IncrementUsageCounterParams) (UsageCounter, error)
	ListAccountsWithExpiredCycle(ctx context.Context, arg ListAccountsWithExpiredCycleParams) ([]Account, error)
	ListSubscriptionEventsByUser(ctx context.Context, arg ListSubscriptionEventsByUserParams) ([]SubscriptionEvent, error)
	ListTierLimits(ctx context.Context) ([]TierLimit, error)
	ListUsageCountersByUser(ctx context.Context, arg ListUsageCountersByUserParams) ([]UsageCounter, error)
	ListUsageCountersForCycle(ctx context.Context, arg ListUsageCountersForCycleParams) ([]UsageCounter, error)
	SetAccountStripeCustomer(ctx context.Context, arg SetAccountStripeCustomerParams) (Account, error)
	UpdateAccountBillingCycle(ctx context.Context, arg UpdateAccountBillingCycleParams) (Account, error)
	UpdateAccountTier(ctx context.Context, arg UpdateAccountTierParams) (Account, error)
	UpsertTierLimit(ctx context.Context, arg UpsertTierLimitParams) (TierLimit, error)
}

// Store adds transactions to QuotaQuerier.
// ExecTx runs fn inside one transaction; it commits when fn returns nil and
// rolls back otherwise.
type Store interface {
	QuotaQuerier
	ExecTx(ctx context.Context, fn func(QuotaQuerier) error) error
}

// SQLStore implements Store on a database/sql handle.
type SQLStore struct {
	*Queries
	db *sql.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// ExecTx runs fn in a read-committed transaction.
func (s *SQLStore) ExecTx(ctx context.Context, fn func(QuotaQuerier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
