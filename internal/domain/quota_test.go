package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLimit_Allows(t *testing.T) {
	tests := []struct {
		name  string
		limit Limit
		usage int64
		want  bool
	}{
		{"unlimited with no usage", Unlimited, 0, true},
		{"unlimited with huge usage", Unlimited, 1 << 40, true},
		{"zero limit denies", 0, 0, false},
		{"below limit", 5, 4, true},
		{"at limit", 5, 5, false},
		{"over limit", 5, 9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.limit.Allows(tt.usage))
		})
	}
}

func TestLimit_Remaining(t *testing.T) {
	assert.Equal(t, int64(-1), Unlimited.Remaining(100))
	assert.Equal(t, int64(3), Limit(5).Remaining(2))
	assert.Equal(t, int64(0), Limit(5).Remaining(5))
	assert.Equal(t, int64(0), Limit(5).Remaining(8))
}

func TestLimit_String(t *testing.T) {
	assert.Equal(t, "unlimited", Unlimited.String())
	assert.Equal(t, "25", Limit(25).String())
}

func TestTierLimit_Validate(t *testing.T) {
	assert.NoError(t, TierLimit{Tier: TierPro, Metric: MetricStorageGB, Limit: 10}.Validate())
	assert.NoError(t, TierLimit{Tier: TierEnterprise, Metric: MetricStorageGB, Limit: Unlimited}.Validate())

	err := TierLimit{Tier: TierPro, Metric: MetricStorageGB, Limit: -2}.Validate()
	assert.Equal(t, EINVALID, ErrorCode(err))

	err = TierLimit{Tier: "gold", Metric: MetricStorageGB, Limit: 1}.Validate()
	assert.Equal(t, EINVALID, ErrorCode(err))

	err = TierLimit{Tier: TierPro, Limit: 1}.Validate()
	assert.Equal(t, EINVALID, ErrorCode(err))
}

func TestBillingCycle(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cycle := NewBillingCycle(start, DefaultBillingCycleLength)

	assert.Equal(t, start.Add(30*24*time.Hour), cycle.End)
	assert.False(t, cycle.HasEnded(start.Add(time.Hour)))
	assert.True(t, cycle.HasEnded(cycle.End))
}

func TestNewQuotaResult(t *testing.T) {
	cycle := NewBillingCycle(time.Now(), DefaultBillingCycleLength)
	id := uuid.New()

	denied := NewQuotaResult(id, MetricDealsPerMonth, TierFree, cycle, 5, 5)
	assert.False(t, denied.Allowed)
	assert.False(t, denied.Unlimited())
	assert.Equal(t, int64(0), denied.Remaining())

	unlimited := NewQuotaResult(id, MetricDealsPerMonth, TierEnterprise, cycle, 500, Unlimited)
	assert.True(t, unlimited.Allowed)
	assert.True(t, unlimited.Unlimited())
	assert.Equal(t, int64(-1), unlimited.Remaining())
}
