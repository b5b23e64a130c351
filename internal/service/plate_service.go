package service

import (
	"fmt"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/repository"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/validation"
)

// PlateService manages a user's plate registrations. The raw plate
// text only exists in the request; storage and matching work on the
// fingerprint.
type PlateService struct {
	plateRepo repository.PlateRepositoryInterface
}

func NewPlateService(plateRepo repository.PlateRepositoryInterface) *PlateService {
	return &PlateService{plateRepo: plateRepo}
}

type RegisterPlateInput struct {
	Plate string `json:"plate"`
	Label string `json:"label"`
}

func (s *PlateService) RegisterPlate(userID uint, input RegisterPlateInput) (*models.PlateRegistration, error) {
	if !validation.ValidatePlate(input.Plate) {
		return nil, apperr.Validation("malformed plate %q", input.Plate)
	}

	reg := &models.PlateRegistration{
		OwnerUserID: userID,
		PlateHash:   validation.PlateFingerprint(input.Plate),
		Label:       validation.TrimAndLimit(input.Label, 64),
	}
	if err := s.plateRepo.Create(reg); err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.Validation("plate already registered")
		}
		return nil, fmt.Errorf("%w: registering plate: %v", apperr.ErrPersistence, err)
	}
	return reg, nil
}

func (s *PlateService) ListPlates(userID uint) ([]models.PlateRegistration, error) {
	regs, err := s.plateRepo.FindByOwner(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing plates: %v", apperr.ErrPersistence, err)
	}
	return regs, nil
}

func (s *PlateService) RemovePlate(userID uint, registrationID uint) error {
	removed, err := s.plateRepo.DeleteOwned(registrationID, userID)
	if err != nil {
		return fmt.Errorf("%w: removing plate registration %d: %v", apperr.ErrPersistence, registrationID, err)
	}
	if !removed {
		return fmt.Errorf("%w: plate registration %d", apperr.ErrNotFound, registrationID)
	}
	return nil
}

// RefreshSnapshot re-reads the owner's registrations; sessions call it
// on reconnect so their local validation set is current.
func (s *PlateService) RefreshSnapshot(userID uint) error {
	_, err := s.ListPlates(userID)
	return err
}
