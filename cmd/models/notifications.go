package models

import (
	"time"

	"gorm.io/gorm"
)

// Device is a registered Expo push target. A user can hold several
// devices; the pair (token, user) is unique.
type Device struct {
	gorm.Model
	Token      string `gorm:"not null;uniqueIndex:idx_device_token_user" json:"token"`
	UserID     uint   `gorm:"not null;index;uniqueIndex:idx_device_token_user" json:"user_id"`
	DeviceType string `gorm:"size:50" json:"device_type"`
	DeviceName string `gorm:"size:100" json:"device_name,omitempty"`
}

type NotificationRequest struct {
	Token string                 `json:"token"`
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

type BroadcastRequest struct {
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Data    map[string]interface{} `json:"data,omitempty"`
	UserIDs []uint                 `json:"user_ids,omitempty"`
}

type NotificationHistory struct {
	gorm.Model
	UserID uint      `gorm:"index" json:"user_id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Data   string    `gorm:"type:text" json:"data,omitempty"`
	Status string    `gorm:"size:20" json:"status"`
	SentAt time.Time `json:"sent_at"`
}
