package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/quotaledger/internal/billing"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/DukeRupert/quotaledger/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_handler_test"

type recordingEnqueuer struct {
	jobs []repository.EnqueueJobParams
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, params repository.EnqueueJobParams) (repository.Job, error) {
	e.jobs = append(e.jobs, params)
	return repository.Job{ID: uuid.New(), JobType: params.JobType}, nil
}

type webhookEnv struct {
	*testEnv
	jobs    *recordingEnqueuer
	handler *WebhookHandler
}

func newWebhookEnv(t *testing.T, withQueue bool) *webhookEnv {
	t.Helper()
	env := newTestEnv(t)
	svc := billing.NewStripeService("", testWebhookSecret, map[string]domain.Tier{
		"price_pro":        domain.TierPro,
		"price_enterprise": domain.TierEnterprise,
	})

	w := &webhookEnv{testEnv: env}
	var q worker.Enqueuer
	if withQueue {
		w.jobs = &recordingEnqueuer{}
		q = w.jobs
	}
	w.handler = NewWebhookHandler(svc, env.subscriptions, env.cycles, q, discardLogger())
	w.handler.RegisterRoutes(env.mux)
	return w
}

func (w *webhookEnv) linkedAccount(t *testing.T, customerID string) uuid.UUID {
	t.Helper()
	id := w.provision(t, "free")
	_, err := w.subscriptions.LinkStripeCustomer(context.Background(), id, customerID)
	require.NoError(t, err)
	return id
}

// send posts a signed Stripe event whose data.object is obj.
func (w *webhookEnv) send(t *testing.T, eventType string, obj string) *httptest.ResponseRecorder {
	t.Helper()
	payload := fmt.Sprintf(`{"id":"evt_%s","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		uuid.NewString()[:8], stripe.APIVersion, eventType, obj)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	w.mux.ServeHTTP(rec, req)
	return rec
}

func subscriptionObject(customer, price, status string) string {
	return fmt.Sprintf(`{"id":"sub_1","object":"subscription","customer":%q,"status":%q,"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":%q,"object":"price"}}]}}`,
		customer, status, price)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	w := newWebhookEnv(t, true)

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	w.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_SubscriptionUpdatedChangesTier(t *testing.T) {
	w := newWebhookEnv(t, true)
	id := w.linkedAccount(t, "cus_up")

	rec := w.send(t, "customer.subscription.updated", subscriptionObject("cus_up", "price_enterprise", "active"))
	require.Equal(t, http.StatusOK, rec.Code)

	acct, err := w.subscriptions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierEnterprise, acct.Tier)

	events, err := w.subscriptions.ListEvents(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTypeUpgrade, events[0].EventType)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(events[0].Metadata, &meta))
	assert.Equal(t, domain.TierChangeSourceWebhook, meta["source"])
	assert.Equal(t, "sub_1", meta["stripe_subscription"])

	// Redelivery is idempotent
	rec = w.send(t, "customer.subscription.updated", subscriptionObject("cus_up", "price_enterprise", "active"))
	require.Equal(t, http.StatusOK, rec.Code)
	events, err = w.subscriptions.ListEvents(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWebhook_SubscriptionIgnoredCases(t *testing.T) {
	w := newWebhookEnv(t, true)
	id := w.linkedAccount(t, "cus_ign")

	// Unmapped price
	rec := w.send(t, "customer.subscription.created", subscriptionObject("cus_ign", "price_unknown", "active"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Past due keeps the tier
	rec = w.send(t, "customer.subscription.updated", subscriptionObject("cus_ign", "price_pro", "past_due"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unknown customer is acknowledged
	rec = w.send(t, "customer.subscription.updated", subscriptionObject("cus_nobody", "price_pro", "active"))
	assert.Equal(t, http.StatusOK, rec.Code)

	acct, err := w.subscriptions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, acct.Tier)
}

func TestWebhook_SubscriptionDeletedDowngrades(t *testing.T) {
	w := newWebhookEnv(t, true)
	id := w.linkedAccount(t, "cus_del")
	_, err := w.subscriptions.ChangeTier(context.Background(), domain.TierChangeParams{UserID: id, Tier: domain.TierPro})
	require.NoError(t, err)
	w.advance(time.Minute)

	rec := w.send(t, "customer.subscription.deleted", subscriptionObject("cus_del", "price_pro", "canceled"))
	require.Equal(t, http.StatusOK, rec.Code)

	acct, err := w.subscriptions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, acct.Tier)

	events, err := w.subscriptions.ListEvents(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTypeDowngrade, events[0].EventType)
}

func TestWebhook_RenewalEnqueuesReset(t *testing.T) {
	w := newWebhookEnv(t, true)
	id := w.linkedAccount(t, "cus_renew")

	rec := w.send(t, "invoice.payment_succeeded", `{"id":"in_1","object":"invoice","customer":"cus_renew","billing_reason":"subscription_create"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, w.jobs.jobs, "first invoice does not reset the cycle")

	rec = w.send(t, "invoice.payment_succeeded", `{"id":"in_2","object":"invoice","customer":"cus_renew","billing_reason":"subscription_cycle"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, w.jobs.jobs, 1)

	job := w.jobs.jobs[0]
	assert.Equal(t, worker.JobTypeResetBillingCycle, job.JobType)
	var payload worker.ResetBillingCyclePayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, id, payload.UserID)
	assert.True(t, payload.OnlyIfExpired, "renewals must not reset a cycle the sweep already advanced")
}

func TestWebhook_RenewalResetsInlineWithoutQueue(t *testing.T) {
	w := newWebhookEnv(t, false)
	id := w.linkedAccount(t, "cus_inline")
	w.advance(domain.DefaultBillingCycleLength + time.Hour)

	rec := w.send(t, "invoice.payment_succeeded", `{"id":"in_3","object":"invoice","customer":"cus_inline","billing_reason":"subscription_cycle"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	acct, err := w.subscriptions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, w.clock(), acct.Cycle.Start)
}

func TestWebhook_LateRenewalKeepsAdvancedCycle(t *testing.T) {
	w := newWebhookEnv(t, false)
	id := w.linkedAccount(t, "cus_late")
	ctx := context.Background()

	// The sweep rolls the expired cycle over before Stripe's invoice arrives.
	w.advance(domain.DefaultBillingCycleLength + time.Minute)
	advancedAcct, advanced, err := w.cycles.AdvanceIfExpired(ctx, id)
	require.NoError(t, err)
	require.True(t, advanced)

	w.advance(time.Hour)
	_, err = w.quota.Increment(ctx, id, string(domain.MetricDealsPerMonth), 3)
	require.NoError(t, err)

	rec := w.send(t, "invoice.payment_succeeded", `{"id":"in_4","object":"invoice","customer":"cus_late","billing_reason":"subscription_cycle"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	acct, err := w.subscriptions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, advancedAcct.Cycle.Start, acct.Cycle.Start)

	result, err := w.quota.Evaluate(ctx, id, string(domain.MetricDealsPerMonth))
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.CurrentUsage)
}

func TestWebhook_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	h := NewWebhookHandler(nil, env.subscriptions, env.cycles, nil, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, httptest.NewRequest("POST", "/webhooks/stripe", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return fmt.Errorf("connection refused") }

	rec := httptest.NewRecorder()
	HealthHandler(discardLogger())(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	HealthHandler(discardLogger(),
		HealthCheck{Name: "database", Check: ok},
		HealthCheck{Name: "redis", Check: ok},
	)(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler(discardLogger(),
		HealthCheck{Name: "database", Check: ok},
		HealthCheck{Name: "redis", Check: down},
	)(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","failed":"redis"}`, rec.Body.String())
}
