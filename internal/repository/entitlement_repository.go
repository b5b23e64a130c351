package repository

import (
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"gorm.io/gorm"
)

type EntitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

func (r *EntitlementRepository) GetOrCreate(userID uint, windowStart time.Time) (*models.EntitlementState, error) {
	var state models.EntitlementState
	err := r.db.Where(models.EntitlementState{UserID: userID}).
		Attrs(models.EntitlementState{
			Tier:             models.TierFree,
			UsageWindowStart: windowStart,
		}).
		FirstOrCreate(&state).Error
	return &state, err
}

func (r *EntitlementRepository) Get(userID uint) (*models.EntitlementState, error) {
	var state models.EntitlementState
	err := r.db.Where("user_id = ?", userID).First(&state).Error
	return &state, err
}

func (r *EntitlementRepository) SetTier(userID uint, tier models.EntitlementTier) error {
	return r.db.Model(&models.EntitlementState{}).
		Where("user_id = ?", userID).
		Update("tier", tier).Error
}

// ResetWindowIfExpired zeroes the counter and moves the window start in
// one conditional UPDATE. Two concurrent callers cannot both reset: the
// WHERE clause stops matching after the first one lands.
func (r *EntitlementRepository) ResetWindowIfExpired(userID uint, expiredBefore time.Time, newStart time.Time) error {
	return r.db.Model(&models.EntitlementState{}).
		Where("user_id = ? AND usage_window_start <= ?", userID, expiredBefore).
		Updates(map[string]interface{}{
			"daily_alerts_used":  0,
			"usage_window_start": newStart,
		}).Error
}

// ConsumeIfUnder is the atomic check-and-increment behind the
// entitlement gate. A plain read-then-write pair would let two sessions
// of the same account both observe remaining quota and over-grant; the
// single conditional UPDATE cannot.
func (r *EntitlementRepository) ConsumeIfUnder(userID uint, quota int) (bool, error) {
	res := r.db.Model(&models.EntitlementState{}).
		Where("user_id = ? AND daily_alerts_used < ?", userID, quota).
		UpdateColumn("daily_alerts_used", gorm.Expr("daily_alerts_used + 1"))
	return res.RowsAffected > 0, res.Error
}
