package repository

import (
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"gorm.io/gorm"
)

type PendingAlertRepository struct {
	db *gorm.DB
}

func NewPendingAlertRepository(db *gorm.DB) *PendingAlertRepository {
	return &PendingAlertRepository{db: db}
}

// Enqueue queues an alert envelope for a receiver with no live session.
// The entry is retryable right away; the worker owns the backoff from
// here.
func (r *PendingAlertRepository) Enqueue(userID, alertID uint, payload string, priority int) error {
	now := time.Now()
	pending := &models.PendingAlert{
		UserID:    userID,
		AlertID:   alertID,
		Payload:   payload,
		Priority:  priority,
		Attempts:  0,
		NextRetry: &now,
	}
	return r.db.Create(pending).Error
}

func (r *PendingAlertRepository) GetPendingForUser(userID uint, limit int) ([]models.PendingAlert, error) {
	var pending []models.PendingAlert
	err := r.db.Where("user_id = ?", userID).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&pending).Error
	return pending, err
}

// GetRetryable fetches queue entries whose backoff timer has elapsed
func (r *PendingAlertRepository) GetRetryable(limit int) ([]models.PendingAlert, error) {
	var pending []models.PendingAlert
	err := r.db.Where("next_retry IS NOT NULL AND next_retry <= ?", time.Now()).
		Order("priority DESC, next_retry ASC").
		Limit(limit).
		Find(&pending).Error
	return pending, err
}

func (r *PendingAlertRepository) MarkAttempted(id uint, attempts int, nextRetry *time.Time) error {
	now := time.Now()
	return r.db.Model(&models.PendingAlert{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":     attempts,
			"last_attempt": now,
			"next_retry":   nextRetry,
		}).Error
}

func (r *PendingAlertRepository) Delete(id uint) error {
	return r.db.Delete(&models.PendingAlert{}, id).Error
}

func (r *PendingAlertRepository) DeleteBatch(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Delete(&models.PendingAlert{}, ids).Error
}

func (r *PendingAlertRepository) CountPendingForUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.PendingAlert{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// CleanupOld drops queue entries past their useful life; a stale alert
// is repaired by reconciliation instead.
func (r *PendingAlertRepository) CleanupOld(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return r.db.Where("created_at < ?", cutoff).Delete(&models.PendingAlert{}).Error
}
