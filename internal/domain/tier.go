// Package domain contains core business types and interfaces.
//
// This file defines the closed set of subscription tiers and the rules for
// classifying a transition between two of them.
package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tier is the subscription level that determines quota limits.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierFree, TierPro, TierEnterprise}

var tierTitle = cases.Title(language.English)

// ParseTier converts a raw string into a Tier.
// Input is trimmed and lowercased; anything outside the closed set is invalid.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", Invalid("tier.parse", fmt.Sprintf("unknown subscription tier %q", s))
	}
	return t, nil
}

// IsValid returns true if the tier is one of free, pro or enterprise.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (t Tier) String() string {
	return string(t)
}

// DisplayName returns the tier formatted for people ("Enterprise").
func (t Tier) DisplayName() string {
	return tierTitle.String(string(t))
}

// SubscriptionEventType classifies a subscription event.
type SubscriptionEventType string

const (
	EventTypeUpgrade    SubscriptionEventType = "upgrade"
	EventTypeDowngrade  SubscriptionEventType = "downgrade"
	EventTypeTierChange SubscriptionEventType = "tier_change"
)

// IsValid returns true for known event types.
func (e SubscriptionEventType) IsValid() bool {
	switch e {
	case EventTypeUpgrade, EventTypeDowngrade, EventTypeTierChange:
		return true
	}
	return false
}

// ClassifyTierChange returns the event type for a transition from prev to next.
// The second return value is false when the tiers are equal; no event is
// recorded for a no-op change.
//
// Rules are evaluated in order and the first match wins:
//
//  1. next is enterprise                         -> upgrade
//  2. next is pro and prev is free               -> upgrade
//  3. next is free and prev is pro or enterprise -> downgrade
//  4. anything else                              -> tier_change
//
// With this ordering enterprise -> pro is a tier_change, not a downgrade.
func ClassifyTierChange(prev, next Tier) (SubscriptionEventType, bool) {
	if prev == next {
		return "", false
	}

	switch {
	case next == TierEnterprise:
		return EventTypeUpgrade, true
	case next == TierPro && prev == TierFree:
		return EventTypeUpgrade, true
	case next == TierFree && (prev == TierPro || prev == TierEnterprise):
		return EventTypeDowngrade, true
	default:
		return EventTypeTierChange, true
	}
}
