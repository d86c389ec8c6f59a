package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
)

const (
	SignalStatusActive = "active"
	SignalStatusClosed = "closed"
)

const (
	SignalSourceWebhook   = "webhook"
	SignalSourceGenerated = "generated"
)

type Signal struct {
	gorm.Model
	Pair     string  `gorm:"column:pair;type:text;not null;index" json:"pair"`
	Action   string  `gorm:"column:action;type:text;not null" json:"action"`
	Entry    float64 `gorm:"column:entry;not null" json:"entry"`
	StopLoss float64 `gorm:"column:stop_loss" json:"stop_loss"`

	TakeProfits pq.Float64Array `gorm:"type:float[];column:take_profits" json:"take_profits,omitempty"`

	Timeframe string `gorm:"column:timeframe;size:20" json:"timeframe,omitempty"`
	Strategy  string `gorm:"column:strategy;size:100" json:"strategy,omitempty"`
	Source    string `gorm:"column:source;size:20;not null;default:webhook" json:"source"`

	Status     string     `gorm:"column:status;size:20;not null;default:active;index" json:"status"`
	ClosePrice float64    `gorm:"column:close_price" json:"close_price,omitempty"`
	ClosedAt   *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`

	Commentary string `gorm:"column:commentary;type:text" json:"commentary,omitempty"`
}
