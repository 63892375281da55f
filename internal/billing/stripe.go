// Package billing connects subscription tiers to Stripe.
package billing

import (
	"errors"
	"fmt"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ErrNotConfigured is returned by API calls when no secret key is set.
var ErrNotConfigured = errors.New("stripe secret key is not configured")

// Service defines the interface for billing operations.
type Service interface {
	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// TierForPriceID returns the subscription tier a Stripe price grants.
	TierForPriceID(priceID string) (domain.Tier, bool)

	// GetCustomer fetches a Stripe customer, used to check ids before they
	// are linked to an account.
	GetCustomer(customerID string) (*stripe.Customer, error)
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	secretKey     string
	webhookSecret string
	priceToTier   map[string]domain.Tier
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey authenticates Stripe API calls and may be empty when only
// webhooks are used. priceTiers maps Stripe price ids to tiers.
func NewStripeService(secretKey, webhookSecret string, priceTiers map[string]domain.Tier) Service {
	if secretKey != "" {
		stripe.Key = secretKey
	}

	priceToTier := make(map[string]domain.Tier, len(priceTiers))
	for price, tier := range priceTiers {
		if price != "" {
			priceToTier[price] = tier
		}
	}

	return &stripeService{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		priceToTier:   priceToTier,
	}
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) TierForPriceID(priceID string) (domain.Tier, bool) {
	tier, ok := s.priceToTier[priceID]
	return tier, ok
}

func (s *stripeService) GetCustomer(customerID string) (*stripe.Customer, error) {
	if s.secretKey == "" {
		return nil, ErrNotConfigured
	}
	c, err := customer.Get(customerID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get customer: %w", err)
	}
	return c, nil
}
