package repository

import (
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"gorm.io/gorm"
)

type PlateRepository struct {
	db *gorm.DB
}

func NewPlateRepository(db *gorm.DB) *PlateRepository {
	return &PlateRepository{db: db}
}

func (r *PlateRepository) Create(reg *models.PlateRegistration) error {
	return r.db.Create(reg).Error
}

func (r *PlateRepository) FindByID(id uint) (*models.PlateRegistration, error) {
	var reg models.PlateRegistration
	err := r.db.First(&reg, id).Error
	return &reg, err
}

func (r *PlateRepository) FindByOwner(userID uint) ([]models.PlateRegistration, error) {
	var regs []models.PlateRegistration
	err := r.db.Where("owner_user_id = ?", userID).
		Order("created_at ASC").
		Find(&regs).Error
	return regs, err
}

// DeleteOwned removes a registration only when it belongs to the caller.
func (r *PlateRepository) DeleteOwned(id uint, ownerUserID uint) (bool, error) {
	res := r.db.Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Delete(&models.PlateRegistration{})
	return res.RowsAffected > 0, res.Error
}

func (r *PlateRepository) ResolveOwners(plateHash string) ([]uint, error) {
	var ownerIDs []uint
	err := r.db.Model(&models.PlateRegistration{}).
		Where("plate_hash = ?", plateHash).
		Distinct("owner_user_id").
		Pluck("owner_user_id", &ownerIDs).Error
	return ownerIDs, err
}
