// This file implements the Stripe webhook handler that keeps account tiers
// in sync with Stripe subscriptions.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no token middleware) because Stripe calls it
// directly. Authentication is via the Stripe webhook signature.

package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/quotaledger/internal/billing"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/DukeRupert/quotaledger/internal/worker"
	"github.com/stripe/stripe-go/v79"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing       billing.Service
	subscriptions service.SubscriptionService
	cycles        service.BillingCycleService
	jobs          worker.Enqueuer
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured. When jobs is nil
// renewals reset the billing cycle inline instead of through the queue.
func NewWebhookHandler(
	billingService billing.Service,
	subscriptions service.SubscriptionService,
	cycles service.BillingCycleService,
	jobs worker.Enqueuer,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		subscriptions: subscriptions,
		cycles:        cycles,
		jobs:          jobs,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are public; Stripe signs each request instead.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
// Storage failures answer 500 so Stripe redelivers; events that cannot be
// matched to an account are acknowledged and logged.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	logger := h.logger.With("event_type", event.Type, "event_id", event.ID)
	logger.Info("stripe webhook received")

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.handleSubscriptionChanged(r.Context(), event, logger)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(r.Context(), event, logger)
	case "invoice.payment_succeeded":
		err = h.handlePaymentSucceeded(r.Context(), event, logger)
	default:
		logger.Debug("unhandled webhook event type")
	}

	if err != nil {
		if domain.IsCode(err, domain.ESTORAGE) || domain.IsCode(err, domain.EINTERNAL) {
			logger.Error("webhook processing failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		logger.Warn("webhook event ignored", "error", err)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, event stripe.Event, logger *slog.Logger) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Invalid("webhook.subscription", "failed to parse subscription")
	}

	var tier domain.Tier
	priceID := ""
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			priceID = sub.Items.Data[0].Price.ID
		}
		mapped, ok := h.billing.TierForPriceID(priceID)
		if !ok {
			logger.Warn("subscription price is not mapped to a tier", "price_id", priceID, "subscription_id", sub.ID)
			return nil
		}
		tier = mapped
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
		tier = domain.TierFree
	default:
		logger.Debug("subscription status does not change tier", "status", sub.Status, "subscription_id", sub.ID)
		return nil
	}

	return h.applyTier(ctx, sub.Customer, tier, map[string]string{
		"stripe_event_id":     event.ID,
		"stripe_subscription": sub.ID,
		"stripe_price":        priceID,
		"stripe_status":       string(sub.Status),
	}, logger)
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event, logger *slog.Logger) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Invalid("webhook.subscription_deleted", "failed to parse subscription")
	}

	return h.applyTier(ctx, sub.Customer, domain.TierFree, map[string]string{
		"stripe_event_id":     event.ID,
		"stripe_subscription": sub.ID,
	}, logger)
}

// handlePaymentSucceeded starts a new billing cycle when a subscription
// renews. First invoices and manual invoices leave the cycle alone. The
// reset is conditional: if the sweep already advanced the expired cycle, a
// late renewal must not discard usage recorded in the new one.
func (h *WebhookHandler) handlePaymentSucceeded(ctx context.Context, event stripe.Event, logger *slog.Logger) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return domain.Invalid("webhook.invoice", "failed to parse invoice")
	}

	if invoice.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		return nil
	}

	acct, err := h.accountFor(ctx, invoice.Customer)
	if err != nil {
		return err
	}

	if h.jobs != nil {
		job, err := worker.EnqueueResetBillingCycle(ctx, h.jobs, acct.ID, true, worker.WithPriority(worker.PriorityHigh))
		if err != nil {
			return domain.StorageFailure(err, "webhook.invoice", "failed to enqueue billing cycle reset")
		}
		logger.Info("billing cycle reset enqueued", "user_id", acct.ID, "job_id", job.ID)
		return nil
	}

	_, advanced, err := h.cycles.AdvanceIfExpired(ctx, acct.ID)
	if err != nil {
		return err
	}
	if !advanced {
		logger.Info("billing cycle already current", "user_id", acct.ID)
	}
	return nil
}

func (h *WebhookHandler) applyTier(ctx context.Context, cust *stripe.Customer, tier domain.Tier, meta map[string]string, logger *slog.Logger) error {
	acct, err := h.accountFor(ctx, cust)
	if err != nil {
		return err
	}

	result, err := h.subscriptions.ChangeTier(ctx, domain.TierChangeParams{
		UserID:   acct.ID,
		Tier:     tier,
		Source:   domain.TierChangeSourceWebhook,
		Metadata: meta,
	})
	if err != nil {
		return err
	}

	logger.Info("subscription event processed",
		"user_id", acct.ID,
		"tier", tier,
		"changed", result.Changed(),
	)
	return nil
}

func (h *WebhookHandler) accountFor(ctx context.Context, cust *stripe.Customer) (*domain.Account, error) {
	if cust == nil || cust.ID == "" {
		return nil, domain.Invalid("webhook.customer", "event has no customer")
	}
	return h.subscriptions.GetByStripeCustomerID(ctx, cust.ID)
}
