// Package domain contains core business types and interfaces.
//
// This file defines the tier catalog, usage ledger and quota decision types.
package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Limit is the maximum count allowed for a metric within one billing cycle.
// Unlimited (-1) means no cap.
type Limit int64

// Unlimited is the catalog sentinel for "no cap".
const Unlimited Limit = -1

// IsUnlimited returns true for the unlimited sentinel.
func (l Limit) IsUnlimited() bool {
	return l == Unlimited
}

// Allows reports whether usage leaves room for at least one more unit.
func (l Limit) Allows(usage int64) bool {
	return l.IsUnlimited() || usage < int64(l)
}

// Remaining returns the units left before the limit is reached, or -1 if unlimited.
func (l Limit) Remaining(usage int64) int64 {
	if l.IsUnlimited() {
		return -1
	}
	if left := int64(l) - usage; left > 0 {
		return left
	}
	return 0
}

// String renders the limit for logs and CLI output.
func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// TierLimit is one catalog entry.
type TierLimit struct {
	Tier      Tier
	Metric    Metric
	Limit     Limit
	UpdatedAt time.Time
}

// Validate checks a catalog entry before it is written.
func (tl TierLimit) Validate() error {
	const op = "tier_limit.validate"

	if !tl.Tier.IsValid() {
		return Invalid(op, "unknown subscription tier "+strconv.Quote(string(tl.Tier)))
	}
	if tl.Metric == "" {
		return Invalid(op, "metric is required")
	}
	if tl.Limit < Unlimited {
		return Invalid(op, "limit must be -1 (unlimited) or greater")
	}
	return nil
}

// LimitLookup is a catalog read. Found is false when no row exists for the
// pair, which lets caches remember misses too.
type LimitLookup struct {
	Limit Limit `json:"limit"`
	Found bool  `json:"found"`
}

// BillingCycle is the active metering window for an account.
type BillingCycle struct {
	Start time.Time
	End   time.Time
}

// NewBillingCycle returns a cycle starting at start and lasting length.
func NewBillingCycle(start time.Time, length time.Duration) BillingCycle {
	return BillingCycle{Start: start, End: start.Add(length)}
}

// HasEnded reports whether the cycle is over at t.
func (c BillingCycle) HasEnded(t time.Time) bool {
	return !t.Before(c.End)
}

// UsageCounter accumulates a metric for one user during one billing cycle.
// (UserID, Metric, Cycle.Start) is unique.
type UsageCounter struct {
	UserID    uuid.UUID
	Metric    Metric
	Cycle     BillingCycle
	Count     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuotaResult is the outcome of a quota evaluation.
// A denied result is not an error.
type QuotaResult struct {
	UserID       uuid.UUID
	Metric       Metric
	Tier         Tier
	Allowed      bool
	CurrentUsage int64
	Limit        Limit
	Cycle        BillingCycle
}

// NewQuotaResult builds a result from the values read for one cycle.
func NewQuotaResult(userID uuid.UUID, metric Metric, tier Tier, cycle BillingCycle, usage int64, limit Limit) *QuotaResult {
	return &QuotaResult{
		UserID:       userID,
		Metric:       metric,
		Tier:         tier,
		Allowed:      limit.Allows(usage),
		CurrentUsage: usage,
		Limit:        limit,
		Cycle:        cycle,
	}
}

// Unlimited reports whether the metric has no cap for this tier.
func (r *QuotaResult) Unlimited() bool {
	return r.Limit.IsUnlimited()
}

// Remaining returns the units left in the current cycle, or -1 if unlimited.
func (r *QuotaResult) Remaining() int64 {
	return r.Limit.Remaining(r.CurrentUsage)
}

// UsageSummary is the evaluation of every configured metric for one account.
type UsageSummary struct {
	UserID  uuid.UUID
	Tier    Tier
	Cycle   BillingCycle
	Metrics []QuotaResult
}
