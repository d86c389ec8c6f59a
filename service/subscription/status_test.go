package subscription

import (
	"testing"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStatusNewUserGetsTrial(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	user := &models.User{}

	report, changed := ComputeStatus(user, now)

	assert.True(t, changed)
	assert.Equal(t, models.PlanFree, report.SubscriptionType)
	assert.Equal(t, models.SubscriptionTrial, report.SubscriptionStatus)
	assert.Equal(t, 3, report.FreeTrialDaysLeft)
	assert.False(t, report.IsExpired)

	require.NotNil(t, user.FreeTrialEndDate)
	assert.Equal(t, now.AddDate(0, 0, 3), *user.FreeTrialEndDate)
}

func TestComputeStatusTrialCountdown(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	trialEnd := now.Add(36 * time.Hour)
	user := &models.User{
		SubscriptionType:   models.PlanFree,
		SubscriptionStatus: models.SubscriptionTrial,
		FreeTrialEndDate:   &trialEnd,
	}

	report, changed := ComputeStatus(user, now)

	assert.False(t, changed)
	// 36 hours rounds up to 2 whole days.
	assert.Equal(t, 2, report.FreeTrialDaysLeft)
	assert.False(t, report.IsExpired)
	assert.False(t, report.IsExpiringSoon)
}

func TestComputeStatusTrialExpiringSoon(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	trialEnd := now.Add(12 * time.Hour)
	user := &models.User{
		SubscriptionType:   models.PlanFree,
		SubscriptionStatus: models.SubscriptionTrial,
		FreeTrialEndDate:   &trialEnd,
	}

	report, _ := ComputeStatus(user, now)

	assert.Equal(t, 1, report.FreeTrialDaysLeft)
	assert.True(t, report.IsExpiringSoon)
	assert.False(t, report.IsExpired)
}

func TestComputeStatusExpiredTrialFlips(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	trialEnd := now.Add(-1 * time.Hour)
	user := &models.User{
		SubscriptionType:   models.PlanFree,
		SubscriptionStatus: models.SubscriptionTrial,
		FreeTrialEndDate:   &trialEnd,
	}

	report, changed := ComputeStatus(user, now)

	assert.True(t, changed)
	assert.True(t, report.IsExpired)
	assert.Equal(t, 0, report.DaysRemaining)
	assert.Equal(t, models.SubscriptionExpired, user.SubscriptionStatus)
	assert.Equal(t, models.SubscriptionExpired, report.SubscriptionStatus)
}

func TestComputeStatusExpiredPaidFlips(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	endDate := now.AddDate(0, 0, -2)
	user := &models.User{
		SubscriptionType:    models.PlanMonthly,
		SubscriptionStatus:  models.SubscriptionActive,
		SubscriptionEndDate: &endDate,
	}

	report, changed := ComputeStatus(user, now)

	assert.True(t, changed)
	assert.True(t, report.IsExpired)
	assert.Equal(t, models.SubscriptionExpired, user.SubscriptionStatus)
}

func TestComputeStatusExpiredIsIdempotent(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	endDate := now.AddDate(0, 0, -2)
	user := &models.User{
		SubscriptionType:    models.PlanMonthly,
		SubscriptionStatus:  models.SubscriptionExpired,
		SubscriptionEndDate: &endDate,
	}

	report, changed := ComputeStatus(user, now)

	assert.False(t, changed)
	assert.True(t, report.IsExpired)
	assert.Equal(t, models.SubscriptionExpired, report.SubscriptionStatus)
}

func TestComputeStatusActivePaidExpiringSoon(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		endIn        time.Duration
		expiringSoon bool
	}{
		{"ten days out", 10 * 24 * time.Hour, false},
		{"seven days out", 7 * 24 * time.Hour, true},
		{"one day out", 24 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endDate := now.Add(tt.endIn)
			user := &models.User{
				SubscriptionType:    models.PlanWeekly,
				SubscriptionStatus:  models.SubscriptionActive,
				SubscriptionEndDate: &endDate,
			}

			report, changed := ComputeStatus(user, now)

			assert.False(t, changed)
			assert.False(t, report.IsExpired)
			assert.Equal(t, tt.expiringSoon, report.IsExpiringSoon)
		})
	}
}

func TestComputeStatusInactiveWithoutEndDate(t *testing.T) {
	user := &models.User{
		SubscriptionType:   models.PlanMonthly,
		SubscriptionStatus: models.SubscriptionInactive,
	}

	report, changed := ComputeStatus(user, time.Now())

	assert.False(t, changed)
	assert.True(t, report.IsExpired)
	assert.Equal(t, models.SubscriptionInactive, report.SubscriptionStatus)
}

func TestPlanDuration(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, PlanDuration(models.PlanWeekly))
	assert.Equal(t, 30*24*time.Hour, PlanDuration(models.PlanMonthly))
	assert.Equal(t, 90*24*time.Hour, PlanDuration(models.PlanThreeMonths))
	assert.Equal(t, 365*24*time.Hour, PlanDuration(models.PlanAnnual))
	assert.Equal(t, 30*24*time.Hour, PlanDuration("unknown"))
}
