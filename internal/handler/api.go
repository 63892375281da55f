// Package handler contains the HTTP handlers for the quota ledger.
//
// This file implements the JSON API used by the CRM backend.
//
// Routes handled:
//   - POST   /v1/accounts                              -> ProvisionAccount
//   - GET    /v1/accounts/{id}                         -> GetAccount
//   - PUT    /v1/accounts/{id}/stripe-customer         -> LinkStripeCustomer
//   - GET    /v1/accounts/{id}/quota/{metric}          -> EvaluateQuota
//   - POST   /v1/accounts/{id}/usage/{metric}          -> IncrementUsage
//   - GET    /v1/accounts/{id}/usage                   -> GetUsage
//   - GET    /v1/accounts/{id}/usage/history           -> GetUsageHistory
//   - POST   /v1/accounts/{id}/billing-cycle/reset     -> ResetBillingCycle
//   - PUT    /v1/accounts/{id}/tier                    -> ChangeTier
//   - GET    /v1/accounts/{id}/subscription-events     -> ListSubscriptionEvents
//   - GET    /v1/tier-limits                           -> ListTierLimits
//   - PUT    /v1/tier-limits/{tier}/{metric}           -> SetTierLimit
//   - DELETE /v1/tier-limits/{tier}/{metric}           -> DeleteTierLimit
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// APIHandler serves the /v1 JSON API.
type APIHandler struct {
	quota         service.QuotaService
	subscriptions service.SubscriptionService
	cycles        service.BillingCycleService
	catalog       service.CatalogService
	metrics       domain.MetricSet
	validate      *validator.Validate
	logger        *slog.Logger
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(
	quota service.QuotaService,
	subscriptions service.SubscriptionService,
	cycles service.BillingCycleService,
	catalog service.CatalogService,
	metrics domain.MetricSet,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		quota:         quota,
		subscriptions: subscriptions,
		cycles:        cycles,
		catalog:       catalog,
		metrics:       metrics,
		validate:      newValidator(),
		logger:        logger,
	}
}

// RegisterRoutes registers the API routes on mux behind protect.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protect(fn))
	}

	route("POST /v1/accounts", h.ProvisionAccount)
	route("GET /v1/accounts/{id}", h.GetAccount)
	route("PUT /v1/accounts/{id}/stripe-customer", h.LinkStripeCustomer)
	route("GET /v1/accounts/{id}/quota/{metric}", h.EvaluateQuota)
	route("POST /v1/accounts/{id}/usage/{metric}", h.IncrementUsage)
	route("GET /v1/accounts/{id}/usage", h.GetUsage)
	route("GET /v1/accounts/{id}/usage/history", h.GetUsageHistory)
	route("POST /v1/accounts/{id}/billing-cycle/reset", h.ResetBillingCycle)
	route("PUT /v1/accounts/{id}/tier", h.ChangeTier)
	route("GET /v1/accounts/{id}/subscription-events", h.ListSubscriptionEvents)

	route("GET /v1/tier-limits", h.ListTierLimits)
	route("PUT /v1/tier-limits/{tier}/{metric}", h.SetTierLimit)
	route("DELETE /v1/tier-limits/{tier}/{metric}", h.DeleteTierLimit)
}

// =============================================================================
// Accounts
// =============================================================================

// ProvisionAccount creates the subscription record for a new user.
func (h *APIHandler) ProvisionAccount(w http.ResponseWriter, r *http.Request) {
	var req ProvisionAccountRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	acct, err := h.subscriptions.Provision(r.Context(), req.Params())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAccountResponse(acct))
}

// GetAccount returns one account.
func (h *APIHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	acct, err := h.subscriptions.Get(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(acct))
}

// LinkStripeCustomer attaches a Stripe customer id so webhooks can find
// the account.
func (h *APIHandler) LinkStripeCustomer(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req LinkStripeCustomerRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	acct, err := h.subscriptions.LinkStripeCustomer(r.Context(), userID, req.StripeCustomerID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(acct))
}

// =============================================================================
// Quota and usage
// =============================================================================

// EvaluateQuota reports whether the account may consume one more unit.
// An exhausted quota is a 200 with allowed=false.
func (h *APIHandler) EvaluateQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	result, err := h.quota.Evaluate(r.Context(), userID, r.PathValue("metric"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newQuotaResponse(result))
}

// IncrementUsage records consumption. It does not check the quota; callers
// evaluate first.
func (h *APIHandler) IncrementUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req IncrementUsageRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	amount := int64(1)
	if req.Amount != nil {
		amount = *req.Amount
	}

	counter, err := h.quota.Increment(r.Context(), userID, r.PathValue("metric"), amount)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newUsageCounterResponse(*counter))
}

// GetUsage evaluates every configured metric for the current cycle.
func (h *APIHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	summary, err := h.quota.Usage(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newUsageSummaryResponse(summary))
}

// GetUsageHistory lists counters across cycles, newest first.
func (h *APIHandler) GetUsageHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	limit, ok := h.limitParam(w, r)
	if !ok {
		return
	}

	counters, err := h.quota.History(r.Context(), userID, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := ListResponse[UsageCounterResponse]{Data: make([]UsageCounterResponse, len(counters))}
	for i, c := range counters {
		resp.Data[i] = newUsageCounterResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetBillingCycle starts a fresh cycle now.
func (h *APIHandler) ResetBillingCycle(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	acct, err := h.cycles.ResetCycle(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(acct))
}

// =============================================================================
// Subscription tier
// =============================================================================

// ChangeTier moves the account to another tier and records the audit event.
func (h *APIHandler) ChangeTier(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req ChangeTierRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	result, err := h.subscriptions.ChangeTier(r.Context(), domain.TierChangeParams{
		UserID:   userID,
		Tier:     domain.Tier(req.Tier),
		Source:   domain.TierChangeSourceAPI,
		Metadata: req.Metadata,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := TierChangeResponse{
		Account: newAccountResponse(result.Account),
		Changed: result.Changed(),
	}
	if result.Event != nil {
		ev := newSubscriptionEventResponse(result.Event)
		resp.Event = &ev
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSubscriptionEvents returns the audit log, newest first.
func (h *APIHandler) ListSubscriptionEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	limit, ok := h.limitParam(w, r)
	if !ok {
		return
	}

	events, err := h.subscriptions.ListEvents(r.Context(), userID, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := ListResponse[SubscriptionEventResponse]{Data: make([]SubscriptionEventResponse, len(events))}
	for i := range events {
		resp.Data[i] = newSubscriptionEventResponse(&events[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Tier catalog
// =============================================================================

// ListTierLimits returns the whole catalog.
func (h *APIHandler) ListTierLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := h.catalog.List(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := ListResponse[TierLimitResponse]{Data: make([]TierLimitResponse, len(limits))}
	for i, tl := range limits {
		resp.Data[i] = newTierLimitResponse(tl)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetTierLimit creates or replaces one catalog entry.
func (h *APIHandler) SetTierLimit(w http.ResponseWriter, r *http.Request) {
	tier, metric, ok := h.catalogKey(w, r)
	if !ok {
		return
	}

	var req SetTierLimitRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	tl, err := h.catalog.SetLimit(r.Context(), tier, metric, domain.Limit(*req.Limit))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newTierLimitResponse(*tl))
}

// DeleteTierLimit removes one catalog entry.
func (h *APIHandler) DeleteTierLimit(w http.ResponseWriter, r *http.Request) {
	tier, metric, ok := h.catalogKey(w, r)
	if !ok {
		return
	}

	if err := h.catalog.DeleteLimit(r.Context(), tier, metric); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

// decode reads a JSON body into dst and validates it. When optional is true
// an empty body leaves dst at its zero value. It writes the error response
// itself and returns false on failure.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			ErrorResponse(w, r, h.logger, domain.Invalid("http.decode", "request body must be valid JSON: "+err.Error()))
			return false
		}
	}

	if err := h.validate.Struct(dst); err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return false
	}
	return true
}

func (h *APIHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError("http.path", "id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *APIHandler) catalogKey(w http.ResponseWriter, r *http.Request) (domain.Tier, domain.Metric, bool) {
	tier, err := domain.ParseTier(r.PathValue("tier"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return "", "", false
	}
	metric, err := h.metrics.Parse(r.PathValue("metric"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return "", "", false
	}
	return tier, metric, true
}

// limitParam parses ?limit=. Zero means the service default.
func (h *APIHandler) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError("http.query", "limit", "must be a positive integer"))
		return 0, false
	}
	return limit, true
}
