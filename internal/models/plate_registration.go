package models

import (
	"time"

	"gorm.io/gorm"
)

// PlateRegistration binds one owner to one plate fingerprint. Several
// owners may share a fingerprint (shared or disputed plates) and one
// owner may register several plates.
type PlateRegistration struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OwnerUserID uint   `gorm:"not null;uniqueIndex:idx_owner_plate;index" json:"owner_user_id"`
	Owner       User   `gorm:"foreignKey:OwnerUserID" json:"-"`
	PlateHash   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_owner_plate;index" json:"plate_hash"`

	// Free-form label shown back to the owner ("the van", "mum's car")
	Label string `gorm:"type:varchar(64)" json:"label"`
}
