// Package domain contains core business types and interfaces.
//
// This file defines the subscription view of a user account and the audit
// events recorded when its tier changes.
package domain

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBillingCycleLength is the metering window used when none is configured.
	DefaultBillingCycleLength = 30 * 24 * time.Hour

	// DefaultTrialLength is granted to new free-tier accounts.
	DefaultTrialLength = 14 * 24 * time.Hour
)

// Account holds the subscription and billing fields of a user.
// The rest of the user profile is owned elsewhere.
type Account struct {
	ID               uuid.UUID
	Tier             Tier
	Cycle            BillingCycle
	TrialEnd         *time.Time
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProvisionAccountParams describes a new account.
// Nil times are filled in by ApplyDefaults.
type ProvisionAccountParams struct {
	UserID            uuid.UUID
	Tier              Tier
	BillingCycleStart *time.Time
	BillingCycleEnd   *time.Time
	TrialEnd          *time.Time
	StripeCustomerID  string
}

// ApplyDefaults fills unset fields the way account creation always has:
// the cycle starts now and lasts cycleLength, and free accounts without a
// trial end get one trialLength from now.
func (p *ProvisionAccountParams) ApplyDefaults(now time.Time, cycleLength, trialLength time.Duration) {
	if p.Tier == "" {
		p.Tier = TierFree
	}
	if p.BillingCycleStart == nil {
		start := now
		p.BillingCycleStart = &start
	}
	if p.BillingCycleEnd == nil {
		end := p.BillingCycleStart.Add(cycleLength)
		p.BillingCycleEnd = &end
	}
	if p.Tier == TierFree && p.TrialEnd == nil {
		trialEnd := now.Add(trialLength)
		p.TrialEnd = &trialEnd
	}
}

// Validate checks the parameters after defaults are applied.
func (p *ProvisionAccountParams) Validate() error {
	const op = "account.provision"

	if p.UserID == uuid.Nil {
		return Invalid(op, "user id is required")
	}
	if !p.Tier.IsValid() {
		return Invalid(op, "unknown subscription tier")
	}
	if p.BillingCycleStart != nil && p.BillingCycleEnd != nil && !p.BillingCycleStart.Before(*p.BillingCycleEnd) {
		return Invalid(op, "billing cycle start must be before billing cycle end")
	}
	return nil
}

// SubscriptionEvent is an immutable audit record of a tier transition.
type SubscriptionEvent struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	EventType    SubscriptionEventType
	PreviousTier Tier
	NewTier      Tier
	Metadata     json.RawMessage
	CreatedAt    time.Time
}

// TierChangeMessage is stored with every tier-change event.
const TierChangeMessage = "Subscription tier changed"

// Sources of a tier change, recorded in event metadata.
const (
	TierChangeSourceAPI     = "api"
	TierChangeSourceCLI     = "cli"
	TierChangeSourceWebhook = "stripe_webhook"
)

// TierChangeParams requests a tier change for an account.
type TierChangeParams struct {
	UserID   uuid.UUID
	Tier     Tier
	Source   string
	Metadata map[string]string
}

// EventMetadata builds the JSON document stored with the event.
// Caller keys never override the fixed message or the source.
func (p TierChangeParams) EventMetadata() (json.RawMessage, error) {
	doc := make(map[string]string, len(p.Metadata)+2)
	for k, v := range p.Metadata {
		doc[k] = v
	}
	doc["message"] = TierChangeMessage
	if p.Source != "" {
		doc["source"] = p.Source
	}
	return json.Marshal(doc)
}

// TierChangeResult is returned by a tier change.
// Event is nil when the requested tier equals the current one.
type TierChangeResult struct {
	Account *Account
	Event   *SubscriptionEvent
}

// Changed reports whether the tier actually moved.
func (r *TierChangeResult) Changed() bool {
	return r.Event != nil
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullTime converts a time pointer to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
