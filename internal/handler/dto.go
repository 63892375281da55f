package handler

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// newValidator returns a validator that reports fields by their JSON name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// Requests
// =============================================================================

// ProvisionAccountRequest is the body of POST /v1/accounts.
type ProvisionAccountRequest struct {
	UserID            string     `json:"user_id" validate:"required,uuid"`
	Tier              string     `json:"tier" validate:"omitempty,oneof=free pro enterprise"`
	BillingCycleStart *time.Time `json:"billing_cycle_start"`
	BillingCycleEnd   *time.Time `json:"billing_cycle_end"`
	TrialEnd          *time.Time `json:"trial_end"`
	StripeCustomerID  string     `json:"stripe_customer_id" validate:"omitempty,startswith=cus_,max=255"`
}

// Params converts the request. UserID has already been validated.
func (r ProvisionAccountRequest) Params() domain.ProvisionAccountParams {
	return domain.ProvisionAccountParams{
		UserID:            uuid.MustParse(r.UserID),
		Tier:              domain.Tier(r.Tier),
		BillingCycleStart: r.BillingCycleStart,
		BillingCycleEnd:   r.BillingCycleEnd,
		TrialEnd:          r.TrialEnd,
		StripeCustomerID:  r.StripeCustomerID,
	}
}

// IncrementUsageRequest is the optional body of POST .../usage/{metric}.
// A missing amount means 1.
type IncrementUsageRequest struct {
	Amount *int64 `json:"amount" validate:"omitempty,min=0"`
}

// ChangeTierRequest is the body of PUT /v1/accounts/{id}/tier.
type ChangeTierRequest struct {
	Tier     string            `json:"tier" validate:"required,oneof=free pro enterprise"`
	Metadata map[string]string `json:"metadata" validate:"omitempty,max=20,dive,keys,max=64,endkeys,max=512"`
}

// SetTierLimitRequest is the body of PUT /v1/tier-limits/{tier}/{metric}.
type SetTierLimitRequest struct {
	Limit *int64 `json:"limit" validate:"required,min=-1"`
}

// LinkStripeCustomerRequest is the body of PUT /v1/accounts/{id}/stripe-customer.
type LinkStripeCustomerRequest struct {
	StripeCustomerID string `json:"stripe_customer_id" validate:"required,startswith=cus_,max=255"`
}

// =============================================================================
// Responses
// =============================================================================

// AccountResponse is the API view of an account.
type AccountResponse struct {
	UserID            uuid.UUID  `json:"user_id"`
	Tier              string     `json:"tier"`
	BillingCycleStart time.Time  `json:"billing_cycle_start"`
	BillingCycleEnd   time.Time  `json:"billing_cycle_end"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`
	StripeCustomerID  string     `json:"stripe_customer_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func newAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		UserID:            a.ID,
		Tier:              string(a.Tier),
		BillingCycleStart: a.Cycle.Start,
		BillingCycleEnd:   a.Cycle.End,
		TrialEnd:          a.TrialEnd,
		StripeCustomerID:  a.StripeCustomerID,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

// QuotaResponse is the API view of a quota evaluation.
// Limit and Remaining are -1 when Unlimited is true.
type QuotaResponse struct {
	UserID            uuid.UUID `json:"user_id"`
	Metric            string    `json:"metric"`
	Tier              string    `json:"tier"`
	Allowed           bool      `json:"allowed"`
	CurrentUsage      int64     `json:"current_usage"`
	Limit             int64     `json:"limit"`
	Unlimited         bool      `json:"unlimited"`
	Remaining         int64     `json:"remaining"`
	BillingCycleStart time.Time `json:"billing_cycle_start"`
	BillingCycleEnd   time.Time `json:"billing_cycle_end"`
}

func newQuotaResponse(r *domain.QuotaResult) QuotaResponse {
	return QuotaResponse{
		UserID:            r.UserID,
		Metric:            string(r.Metric),
		Tier:              string(r.Tier),
		Allowed:           r.Allowed,
		CurrentUsage:      r.CurrentUsage,
		Limit:             int64(r.Limit),
		Unlimited:         r.Unlimited(),
		Remaining:         r.Remaining(),
		BillingCycleStart: r.Cycle.Start,
		BillingCycleEnd:   r.Cycle.End,
	}
}

// UsageCounterResponse is one metric's count for one cycle.
type UsageCounterResponse struct {
	Metric            string    `json:"metric"`
	Count             int64     `json:"count"`
	BillingCycleStart time.Time `json:"billing_cycle_start"`
	BillingCycleEnd   time.Time `json:"billing_cycle_end"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newUsageCounterResponse(c domain.UsageCounter) UsageCounterResponse {
	return UsageCounterResponse{
		Metric:            string(c.Metric),
		Count:             c.Count,
		BillingCycleStart: c.Cycle.Start,
		BillingCycleEnd:   c.Cycle.End,
		UpdatedAt:         c.UpdatedAt,
	}
}

// UsageSummaryResponse evaluates every configured metric for an account.
type UsageSummaryResponse struct {
	UserID            uuid.UUID       `json:"user_id"`
	Tier              string          `json:"tier"`
	BillingCycleStart time.Time       `json:"billing_cycle_start"`
	BillingCycleEnd   time.Time       `json:"billing_cycle_end"`
	Metrics           []QuotaResponse `json:"metrics"`
}

func newUsageSummaryResponse(s *domain.UsageSummary) UsageSummaryResponse {
	resp := UsageSummaryResponse{
		UserID:            s.UserID,
		Tier:              string(s.Tier),
		BillingCycleStart: s.Cycle.Start,
		BillingCycleEnd:   s.Cycle.End,
		Metrics:           make([]QuotaResponse, len(s.Metrics)),
	}
	for i := range s.Metrics {
		resp.Metrics[i] = newQuotaResponse(&s.Metrics[i])
	}
	return resp
}

// SubscriptionEventResponse is one audit record.
type SubscriptionEventResponse struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	EventType    string          `json:"event_type"`
	PreviousTier string          `json:"previous_tier"`
	NewTier      string          `json:"new_tier"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newSubscriptionEventResponse(e *domain.SubscriptionEvent) SubscriptionEventResponse {
	return SubscriptionEventResponse{
		ID:           e.ID,
		UserID:       e.UserID,
		EventType:    string(e.EventType),
		PreviousTier: string(e.PreviousTier),
		NewTier:      string(e.NewTier),
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}

// TierChangeResponse reports the account after a tier change and the event
// it produced, if any.
type TierChangeResponse struct {
	Account AccountResponse            `json:"account"`
	Changed bool                       `json:"changed"`
	Event   *SubscriptionEventResponse `json:"event,omitempty"`
}

// TierLimitResponse is one catalog entry.
type TierLimitResponse struct {
	Tier      string    `json:"tier"`
	Metric    string    `json:"metric"`
	Limit     int64     `json:"limit"`
	Unlimited bool      `json:"unlimited"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newTierLimitResponse(tl domain.TierLimit) TierLimitResponse {
	return TierLimitResponse{
		Tier:      string(tl.Tier),
		Metric:    string(tl.Metric),
		Limit:     int64(tl.Limit),
		Unlimited: tl.Limit.IsUnlimited(),
		UpdatedAt: tl.UpdatedAt,
	}
}

// ListResponse wraps collections so the envelope can grow.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}
