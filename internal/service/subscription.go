// Package service contains the business logic layer.
//
// This file implements account provisioning and audited tier changes.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService owns the subscription fields of an account.
type SubscriptionService interface {
	// Provision creates the subscription record for a user. Unset cycle
	// bounds default to now and now plus the cycle length; free accounts
	// without a trial end get the default trial.
	// Returns domain.ECONFLICT if the account or Stripe customer already exists.
	Provision(ctx context.Context, params domain.ProvisionAccountParams) (*domain.Account, error)

	// Get returns an account.
	// Returns domain.ENOTFOUND if it does not exist.
	Get(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// GetByStripeCustomerID resolves a Stripe customer to an account.
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Account, error)

	// LinkStripeCustomer attaches a Stripe customer id to an account.
	// Returns domain.ECONFLICT if another account already uses it.
	LinkStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*domain.Account, error)

	// ChangeTier sets the account's tier and records one audit event in the
	// same transaction. Setting the current tier is a no-op without an event.
	ChangeTier(ctx context.Context, params domain.TierChangeParams) (*domain.TierChangeResult, error)

	// ListEvents returns the account's tier-change history, newest first.
	ListEvents(ctx context.Context, userID uuid.UUID, limit int) ([]domain.SubscriptionEvent, error)
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store  repository.Store
	logger *slog.Logger
	cfg    config
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(store repository.Store, logger *slog.Logger, opts ...Option) SubscriptionService {
	return &subscriptionService{
		store:  store,
		logger: logger,
		cfg:    newConfig(opts),
	}
}

// =============================================================================
// Provisioning
// =============================================================================

func (s *subscriptionService) Provision(ctx context.Context, params domain.ProvisionAccountParams) (*domain.Account, error) {
	const op = "subscription.provision"

	params.StripeCustomerID = strings.TrimSpace(params.StripeCustomerID)
	params.ApplyDefaults(s.cfg.timestamp(), s.cfg.cycleLength, s.cfg.trialLength)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	row, err := s.store.CreateAccount(ctx, repository.CreateAccountParams{
		ID:                params.UserID,
		SubscriptionTier:  string(params.Tier),
		BillingCycleStart: params.BillingCycleStart.UTC(),
		BillingCycleEnd:   params.BillingCycleEnd.UTC(),
		TrialEnd:          domain.ToNullTime(params.TrialEnd),
		StripeCustomerID:  domain.ToNullString(params.StripeCustomerID),
	})
	if err != nil {
		switch {
		case repository.IsUniqueViolation(err):
			return nil, domain.Conflict(op, "account or Stripe customer already exists")
		case repository.IsCheckViolation(err):
			return nil, domain.Invalid(op, "account violates a schema constraint")
		}
		return nil, domain.StorageFailure(err, op, "failed to create account")
	}

	s.logger.Info("account provisioned",
		"user_id", row.ID,
		"tier", row.SubscriptionTier,
		"cycle_end", row.BillingCycleEnd,
	)

	return toAccount(row), nil
}

func (s *subscriptionService) Get(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	const op = "subscription.get"

	row, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, domain.NotFound(op, "account", userID.String())
		}
		return nil, domain.StorageFailure(err, op, "failed to read account")
	}
	return toAccount(row), nil
}

func (s *subscriptionService) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Account, error) {
	const op = "subscription.get_by_stripe_customer"

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.Invalid(op, "stripe customer id is required")
	}

	row, err := s.store.GetAccountByStripeCustomerID(ctx, domain.ToNullString(customerID))
	if err != nil {
		if repository.IsNoRows(err) {
			return nil, domain.NotFound(op, "stripe customer", customerID)
		}
		return nil, domain.StorageFailure(err, op, "failed to read account")
	}
	return toAccount(row), nil
}

func (s *subscriptionService) LinkStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) (*domain.Account, error) {
	const op = "subscription.link_stripe_customer"

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.Invalid(op, "stripe customer id is required")
	}

	row, err := s.store.SetAccountStripeCustomer(ctx, repository.SetAccountStripeCustomerParams{
		ID:               userID,
		StripeCustomerID: domain.ToNullString(customerID),
	})
	if err != nil {
		switch {
		case repository.IsNoRows(err):
			return nil, domain.NotFound(op, "account", userID.String())
		case repository.IsUniqueViolation(err):
			return nil, domain.Conflict(op, "stripe customer is linked to another account")
		}
		return nil, domain.StorageFailure(err, op, "failed to link stripe customer")
	}

	s.logger.Info("stripe customer linked", "user_id", userID, "customer_id", customerID)
	return toAccount(row), nil
}

// =============================================================================
// Tier changes
// =============================================================================

func (s *subscriptionService) ChangeTier(ctx context.Context, params domain.TierChangeParams) (*domain.TierChangeResult, error) {
	const op = "subscription.change_tier"

	if !params.Tier.IsValid() {
		return nil, domain.Invalid(op, "unknown subscription tier "+string(params.Tier))
	}
	meta, err := params.EventMetadata()
	if err != nil {
		return nil, domain.Internal(err, op, "failed to encode event metadata")
	}

	result := &domain.TierChangeResult{}
	err = s.store.ExecTx(ctx, func(q repository.QuotaQuerier) error {
		current, err := q.GetAccountForUpdate(ctx, params.UserID)
		if err != nil {
			if repository.IsNoRows(err) {
				return domain.NotFound(op, "account", params.UserID.String())
			}
			return err
		}

		previous := domain.Tier(current.SubscriptionTier)
		eventType, changed := domain.ClassifyTierChange(previous, params.Tier)
		if !changed {
			result.Account = toAccount(current)
			return nil
		}

		updated, err := q.UpdateAccountTier(ctx, repository.UpdateAccountTierParams{
			ID:               params.UserID,
			SubscriptionTier: string(params.Tier),
		})
		if err != nil {
			return err
		}

		event, err := q.CreateSubscriptionEvent(ctx, repository.CreateSubscriptionEventParams{
			UserID:       params.UserID,
			EventType:    string(eventType),
			PreviousTier: string(previous),
			NewTier:      string(params.Tier),
			Metadata:     pqtype.NullRawMessage{RawMessage: meta, Valid: true},
		})
		if err != nil {
			return err
		}

		result.Account = toAccount(updated)
		recorded := toSubscriptionEvent(event)
		result.Event = &recorded
		return nil
	})
	if err != nil {
		return nil, storageError(err, op, "failed to change subscription tier")
	}

	if result.Changed() {
		metrics.TierChangesTotal.WithLabelValues(string(result.Event.EventType)).Inc()
		s.logger.Info("subscription tier changed",
			"user_id", params.UserID,
			"previous_tier", result.Event.PreviousTier,
			"new_tier", result.Event.NewTier,
			"event_type", result.Event.EventType,
			"source", params.Source,
		)
	}

	return result, nil
}

func (s *subscriptionService) ListEvents(ctx context.Context, userID uuid.UUID, limit int) ([]domain.SubscriptionEvent, error) {
	const op = "subscription.list_events"

	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListSubscriptionEventsByUser(ctx, repository.ListSubscriptionEventsByUserParams{
		UserID: userID,
		Limit:  clampListLimit(limit),
	})
	if err != nil {
		return nil, domain.StorageFailure(err, op, "failed to list subscription events")
	}

	events := make([]domain.SubscriptionEvent, len(rows))
	for i, row := range rows {
		events[i] = toSubscriptionEvent(row)
	}
	return events, nil
}
