package models

import (
	"time"

	"gorm.io/gorm"
)

// PendingAlert is an alert queued for a receiver who had no live
// session at publish time. It is flushed on the next connect and
// retried with exponential backoff in the meantime.
type PendingAlert struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Receiver who should get this alert
	UserID uint `gorm:"not null;index:idx_pending_user_priority" json:"user_id"`

	AlertID uint  `gorm:"not null" json:"alert_id"`
	Alert   Alert `gorm:"foreignKey:AlertID" json:"alert"`

	// Delivery tracking
	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastAttempt *time.Time `json:"last_attempt"`
	NextRetry   *time.Time `gorm:"index" json:"next_retry"`

	// Priority for queue ordering (responses outrank fresh alerts)
	Priority int `gorm:"default:0;index:idx_pending_user_priority" json:"priority"`

	// Cached JSON envelope so flushing needs no joins
	Payload string `gorm:"type:text" json:"payload"`
}
