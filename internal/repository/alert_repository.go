package repository

import (
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"gorm.io/gorm"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(alert *models.Alert) error {
	return r.db.Create(alert).Error
}

func (r *AlertRepository) FindByID(id uint) (*models.Alert, error) {
	var alert models.Alert
	err := r.db.First(&alert, id).Error
	return &alert, err
}

func (r *AlertRepository) FindByClientID(clientID string, senderID, receiverID uint) (*models.Alert, error) {
	var alert models.Alert
	err := r.db.Where("client_id = ? AND sender_id = ? AND receiver_id = ?", clientID, senderID, receiverID).
		First(&alert).Error
	return &alert, err
}

func (r *AlertRepository) FindByReceiver(userID uint, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.Where("receiver_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

func (r *AlertRepository) FindBySender(userID uint, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.db.Where("sender_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

// MarkRead is idempotent: the WHERE clause only matches while read_at is
// null, so a second call affects zero rows and read_at never reverts.
func (r *AlertRepository) MarkRead(id uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.Alert{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", at)
	return res.RowsAffected > 0, res.Error
}

// SetResponse writes response, response_message and response_at in one
// statement, stamping read_at too if it was never set (responding
// implies having read).
func (r *AlertRepository) SetResponse(id uint, response models.AlertResponse, responseMessage *string, at time.Time) error {
	return r.db.Model(&models.Alert{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"response":         response,
			"response_message": responseMessage,
			"response_at":      at,
			"read_at":          gorm.Expr("COALESCE(read_at, ?)", at),
		}).Error
}
