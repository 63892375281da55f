package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Metric names a countable resource or action subject to quota.
type Metric string

const (
	MetricDealsPerMonth               Metric = "deals_per_month"
	MetricAIQueriesPerMonth           Metric = "ai_queries_per_month"
	MetricAutomationRules             Metric = "automation_rules"
	MetricEmailCampaignsPerMonth      Metric = "email_campaigns_per_month"
	MetricDocumentGenerationsPerMonth Metric = "document_generations_per_month"
	MetricAPICallsPerMonth            Metric = "api_calls_per_month"
	MetricStorageGB                   Metric = "storage_gb"
	MetricTeamMembers                 Metric = "team_members"
)

// DefaultMetrics is the allow-list used when none is configured.
var DefaultMetrics = []Metric{
	MetricDealsPerMonth,
	MetricAIQueriesPerMonth,
	MetricAutomationRules,
	MetricEmailCampaignsPerMonth,
	MetricDocumentGenerationsPerMonth,
	MetricAPICallsPerMonth,
	MetricStorageGB,
	MetricTeamMembers,
}

// maxMetricLength matches the column width used in the schema.
const maxMetricLength = 64

// MetricSet is the configured allow-list of metric names.
// The set is intentionally open: deployments add metrics through configuration.
type MetricSet map[Metric]struct{}

// NewMetricSet builds a set from names, normalizing case and whitespace.
// Blank names are skipped.
func NewMetricSet(names ...string) MetricSet {
	set := make(MetricSet, len(names))
	for _, n := range names {
		m := Metric(strings.ToLower(strings.TrimSpace(n)))
		if m == "" {
			continue
		}
		set[m] = struct{}{}
	}
	return set
}

// DefaultMetricSet returns a set containing DefaultMetrics.
func DefaultMetricSet() MetricSet {
	set := make(MetricSet, len(DefaultMetrics))
	for _, m := range DefaultMetrics {
		set[m] = struct{}{}
	}
	return set
}

// Contains reports whether m is allowed.
func (s MetricSet) Contains(m Metric) bool {
	_, ok := s[m]
	return ok
}

// Parse validates a raw metric name against the set.
func (s MetricSet) Parse(raw string) (Metric, error) {
	const op = "metric.parse"

	m := Metric(strings.ToLower(strings.TrimSpace(raw)))
	if m == "" {
		return "", Invalid(op, "metric is required")
	}
	if len(m) > maxMetricLength {
		return "", Invalid(op, fmt.Sprintf("metric name exceeds %d characters", maxMetricLength))
	}
	if !s.Contains(m) {
		return "", Invalid(op, fmt.Sprintf("unknown metric %q", raw))
	}
	return m, nil
}

// Sorted returns the metrics in lexical order.
func (s MetricSet) Sorted() []Metric {
	out := make([]Metric, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
