package subscription

import (
	"math"
	"time"

	"github.com/brianmaseno/readypips-sub001/cmd/models"
)

const (
	freeTrialDays = 3

	// Countdown thresholds for the expiring-soon flag.
	paidExpiryWarning  = 7
	trialExpiryWarning = 1
)

// StatusReport is what the status endpoint returns: the stored
// subscription state plus the countdown derived from it.
type StatusReport struct {
	SubscriptionType    string     `json:"subscription_type"`
	SubscriptionStatus  string     `json:"subscription_status"`
	DaysRemaining       int        `json:"days_remaining"`
	FreeTrialDaysLeft   int        `json:"free_trial_days_remaining,omitempty"`
	IsExpiringSoon      bool       `json:"is_expiring_soon"`
	IsExpired           bool       `json:"is_expired"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	FreeTrialEndDate    *time.Time `json:"free_trial_end_date,omitempty"`
}

// ComputeStatus derives the subscription report for a user at the given
// instant and applies any lazy transitions to the User value: first-time
// users get a 3-day free trial, and an active record past its end date
// flips to expired. It returns true when the user was mutated and needs
// to be persisted. Re-running on an already-expired user changes
// nothing, so concurrent reads issuing the same update are benign.
func ComputeStatus(user *models.User, now time.Time) (StatusReport, bool) {
	changed := false

	// First-time users without a plan start on a free trial.
	if user.SubscriptionType == "" {
		trialEnd := now.AddDate(0, 0, freeTrialDays)
		user.SubscriptionType = models.PlanFree
		user.SubscriptionStatus = models.SubscriptionTrial
		user.FreeTrialEndDate = &trialEnd
		changed = true
	}

	report := StatusReport{
		SubscriptionType:    user.SubscriptionType,
		SubscriptionStatus:  user.SubscriptionStatus,
		SubscriptionEndDate: user.SubscriptionEndDate,
		FreeTrialEndDate:    user.FreeTrialEndDate,
	}

	if user.SubscriptionType == models.PlanFree {
		if user.FreeTrialEndDate == nil {
			trialEnd := now.AddDate(0, 0, freeTrialDays)
			user.FreeTrialEndDate = &trialEnd
			user.SubscriptionStatus = models.SubscriptionTrial
			report.FreeTrialEndDate = &trialEnd
			changed = true
		}

		days := daysUntil(*user.FreeTrialEndDate, now)
		report.FreeTrialDaysLeft = days
		report.DaysRemaining = days
		report.IsExpired = days <= 0
		report.IsExpiringSoon = !report.IsExpired && days <= trialExpiryWarning
	} else {
		if user.SubscriptionEndDate != nil {
			days := daysUntil(*user.SubscriptionEndDate, now)
			report.DaysRemaining = days
			report.IsExpired = days <= 0
			report.IsExpiringSoon = !report.IsExpired && days <= paidExpiryWarning
		} else {
			report.IsExpired = user.SubscriptionStatus != models.SubscriptionActive
		}
	}

	// Lazy transition: the next read after the deadline flips the stored
	// status. Already-expired records are left alone.
	if report.IsExpired &&
		(user.SubscriptionStatus == models.SubscriptionActive || user.SubscriptionStatus == models.SubscriptionTrial) {
		user.SubscriptionStatus = models.SubscriptionExpired
		changed = true
	}

	report.SubscriptionStatus = user.SubscriptionStatus
	return report, changed
}

// daysUntil counts whole days remaining until the deadline, rounding
// partial days up. Zero or negative means the deadline passed.
func daysUntil(deadline, now time.Time) int {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// PlanDuration returns the access duration granted when a payment for
// the plan is confirmed.
func PlanDuration(planID string) time.Duration {
	switch planID {
	case models.PlanWeekly:
		return 7 * 24 * time.Hour
	case models.PlanMonthly:
		return 30 * 24 * time.Hour
	case models.PlanThreeMonths:
		return 90 * 24 * time.Hour
	case models.PlanAnnual:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}
