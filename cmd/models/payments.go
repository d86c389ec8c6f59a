package models

import (
	"gorm.io/gorm"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

const (
	ProviderPaystack = "paystack"
	ProviderPesapal  = "pesapal"
)

// Payment records one provider transaction attempt. It is created when a
// checkout is initialized and finalized exactly once by the provider
// webhook; redelivered webhooks leave a terminal status untouched.
type Payment struct {
	gorm.Model
	UserID     uint    `gorm:"column:user_id;not null;index" json:"user_id"`
	Provider   string  `gorm:"column:provider;size:50;not null" json:"provider"`
	PlanID     string  `gorm:"column:plan_id;size:50;not null" json:"plan_id"`
	Amount     float64 `gorm:"column:amount;not null" json:"amount"`
	Currency   string  `gorm:"column:currency;size:10;not null;default:USD" json:"currency"`
	Status     string  `gorm:"column:status;size:20;not null;default:pending" json:"status"`
	Reference  string  `gorm:"column:reference;size:100;uniqueIndex;not null" json:"reference"`
	TrackingID string  `gorm:"column:tracking_id;size:100;index" json:"tracking_id,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
