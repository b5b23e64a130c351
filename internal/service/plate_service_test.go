package service

import (
	"errors"
	"testing"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/validation"
)

func TestRegisterPlate(t *testing.T) {
	tests := []struct {
		name    string
		input   RegisterPlateInput
		wantErr error
	}{
		{
			name:  "Valid plate",
			input: RegisterPlateInput{Plate: "abc 123", Label: "daily driver"},
		},
		{
			name:    "Malformed plate",
			input:   RegisterPlateInput{Plate: "!!"},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "Empty plate",
			input:   RegisterPlateInput{},
			wantErr: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPlateService(NewMockPlateRepository())

			reg, err := svc.RegisterPlate(1, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("RegisterPlate error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("RegisterPlate unexpected error: %v", err)
			}
			if reg.PlateHash != validation.PlateFingerprint(tt.input.Plate) {
				t.Errorf("stored hash %s does not match fingerprint", reg.PlateHash)
			}
			if reg.OwnerUserID != 1 {
				t.Errorf("owner = %d, want 1", reg.OwnerUserID)
			}
		})
	}
}

func TestRegisterPlateDuplicate(t *testing.T) {
	svc := NewPlateService(NewMockPlateRepository())

	if _, err := svc.RegisterPlate(1, RegisterPlateInput{Plate: "ABC123"}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	// Same owner, same fingerprint (different raw spelling) is rejected.
	if _, err := svc.RegisterPlate(1, RegisterPlateInput{Plate: "abc-123"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("duplicate registration error = %v, want ErrValidation", err)
	}
	// A different owner may register the same plate (shared car).
	if _, err := svc.RegisterPlate(2, RegisterPlateInput{Plate: "ABC123"}); err != nil {
		t.Errorf("second owner registration failed: %v", err)
	}
}

func TestRemovePlate(t *testing.T) {
	repo := NewMockPlateRepository()
	svc := NewPlateService(repo)

	reg, err := svc.RegisterPlate(1, RegisterPlateInput{Plate: "ABC123"})
	if err != nil {
		t.Fatalf("setup registration failed: %v", err)
	}

	// Another user cannot remove someone else's registration.
	if err := svc.RemovePlate(2, reg.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("cross-owner removal error = %v, want ErrNotFound", err)
	}

	if err := svc.RemovePlate(1, reg.ID); err != nil {
		t.Fatalf("RemovePlate unexpected error: %v", err)
	}
	plates, _ := svc.ListPlates(1)
	if len(plates) != 0 {
		t.Errorf("plates remaining after removal: %d", len(plates))
	}

	if err := svc.RemovePlate(1, reg.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("repeat removal error = %v, want ErrNotFound", err)
	}
}
