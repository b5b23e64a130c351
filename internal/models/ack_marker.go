package models

import (
	"time"

	"gorm.io/gorm"
)

// AckMarker is the sender-side record that a response to a sent alert
// has been observed. It never mutates the alert row itself; it only
// flips Acknowledged true exactly once.
type AckMarker struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID  uint `gorm:"not null;uniqueIndex:idx_ack_user_alert;index" json:"user_id"`
	AlertID uint `gorm:"not null;uniqueIndex:idx_ack_user_alert" json:"alert_id"`

	Acknowledged   bool       `gorm:"not null;default:false" json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
}
