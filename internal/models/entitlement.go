package models

import (
	"time"

	"gorm.io/gorm"
)

// EntitlementTier is the subscription level granted by the payment side
// of the product. The engine only cares about the quota each tier maps to.
type EntitlementTier string

const (
	TierFree     EntitlementTier = "free"
	TierPremium  EntitlementTier = "premium"
	TierLifetime EntitlementTier = "lifetime"
)

func (t EntitlementTier) IsPremium() bool {
	return t == TierPremium || t == TierLifetime
}

// EntitlementState tracks per-user quota consumption for the current
// usage window. DailyAlertsUsed resets to 0 when the window expires;
// the mutation is always a single conditional UPDATE so two sessions of
// the same account cannot over-grant sends.
type EntitlementState struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`
	User   User `gorm:"foreignKey:UserID" json:"-"`

	Tier             EntitlementTier `gorm:"type:varchar(20);not null;default:free" json:"tier"`
	DailyAlertsUsed  int             `gorm:"not null;default:0" json:"daily_alerts_used"`
	UsageWindowStart time.Time       `gorm:"not null" json:"usage_window_start"`
}

// EntitlementSnapshot is the cached, client-facing view of a user's
// entitlement. Remaining is derived at read time from the active quota.
type EntitlementSnapshot struct {
	UserID    uint            `json:"user_id" msgpack:"user_id"`
	Tier      EntitlementTier `json:"tier" msgpack:"tier"`
	Used      int             `json:"used" msgpack:"used"`
	Quota     int             `json:"quota" msgpack:"quota"`
	Remaining int             `json:"remaining" msgpack:"remaining"`
	ResetsAt  time.Time       `json:"resets_at" msgpack:"resets_at"`
}
