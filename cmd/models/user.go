package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Subscription plan identifiers. Each maps to a fixed access duration
// applied when a payment for that plan is confirmed.
const (
	PlanFree        = "free"
	PlanWeekly      = "weekly"
	PlanMonthly     = "monthly"
	PlanThreeMonths = "threemonths"
	PlanAnnual      = "annual"
)

const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
	SubscriptionExpired  = "expired"
	SubscriptionTrial    = "trial"
)

type User struct {
	gorm.Model
	FullName     string `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email        string `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`
	Phone        string `gorm:"column:phone;size:20" json:"phone"`

	SubscriptionType    string     `gorm:"column:subscription_type;size:50" json:"subscription_type"`
	SubscriptionStatus  string     `gorm:"column:subscription_status;size:50;default:inactive" json:"subscription_status"`
	SubscriptionEndDate *time.Time `gorm:"column:subscription_end_date" json:"subscription_end_date,omitempty"`
	FreeTrialEndDate    *time.Time `gorm:"column:free_trial_end_date" json:"free_trial_end_date,omitempty"`
	Credits             int        `gorm:"column:credits;default:0" json:"credits"`

	EmailVerified         bool      `gorm:"column:email_verified;default:false" json:"email_verified"`
	EmailVerificationCode string    `gorm:"size:6" json:"-"`
	VerificationExpiry    time.Time `json:"-"`

	Refresh               string    `gorm:"column:refresh_token;size:255" json:"-"`
	RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"-"`
}

// Admin is a separate principal from User; admin tokens are signed with
// their own secret and checked by their own middleware.
type Admin struct {
	gorm.Model
	FullName     string `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email        string `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`
	Role         string `gorm:"column:role;size:50;not null;default:admin" json:"role"`
	IsActive     bool   `gorm:"column:is_active;default:true" json:"is_active"`

	// Comma-separated permission names, e.g. "manage_users,manage_signals".
	Permissions string `gorm:"column:permissions;type:text" json:"permissions"`
}

// HasPermission reports whether the admin holds the named permission.
// Superadmins hold everything.
func (a *Admin) HasPermission(name string) bool {
	if a.Role == "superadmin" {
		return true
	}
	for _, p := range strings.Split(a.Permissions, ",") {
		if strings.TrimSpace(p) == name {
			return true
		}
	}
	return false
}

type PasswordResetToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;index"`
	Token     string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}
