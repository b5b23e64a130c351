package repository

import (
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"gorm.io/gorm"
)

type AckMarkerRepository struct {
	db *gorm.DB
}

func NewAckMarkerRepository(db *gorm.DB) *AckMarkerRepository {
	return &AckMarkerRepository{db: db}
}

// Ensure creates the marker for a sent alert if it does not exist yet.
// Safe to call repeatedly; the (user_id, alert_id) pair is unique.
func (r *AckMarkerRepository) Ensure(userID, alertID uint) error {
	var marker models.AckMarker
	return r.db.Where(models.AckMarker{UserID: userID, AlertID: alertID}).
		FirstOrCreate(&marker).Error
}

// MarkAcknowledged flips the marker exactly once: the conditional
// UPDATE matches only while acknowledged is still false.
func (r *AckMarkerRepository) MarkAcknowledged(userID, alertID uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.AckMarker{}).
		Where("user_id = ? AND alert_id = ? AND acknowledged = ?", userID, alertID, false).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *AckMarkerRepository) FindByUser(userID uint) ([]models.AckMarker, error) {
	var markers []models.AckMarker
	err := r.db.Where("user_id = ?", userID).Find(&markers).Error
	return markers, err
}
