package testutil

import (
	"os"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
)

// TestHelper provides utility functions for tests
type TestHelper struct {
	t *testing.T
}

func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// CreateTestUser creates a test user with default values
func (h *TestHelper) CreateTestUser(id uint, username, email string) *models.User {
	if id == 0 {
		id = 1
	}
	if username == "" {
		username = "testuser"
	}
	if email == "" {
		email = "test@example.com"
	}

	return &models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: "hashed_password_123",
		IsOnline:     false,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// CreateTestAlert creates an alert row with default values
func (h *TestHelper) CreateTestAlert(id uint, senderID, receiverID uint) *models.Alert {
	if id == 0 {
		id = 1
	}
	if senderID == 0 {
		senderID = 1
	}
	if receiverID == 0 {
		receiverID = 2
	}

	return &models.Alert{
		ID:         id,
		ClientID:   "11111111-1111-1111-1111-111111111111",
		SenderID:   senderID,
		ReceiverID: receiverID,
		PlateHash:  "0d5ee80c7ee0f5737b0417943a70a2b93cb1b5c2b4c5a1f46c98a9c99bc4b8aa",
		Message:    "You are blocking my car",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// SetupTestEnv sets up required environment variables for testing
func (h *TestHelper) SetupTestEnv() {
	os.Setenv("JWT_SECRET", "test-secret-key-for-testing-only")
	os.Setenv("DATABASE_URL", "")
	os.Setenv("FREE_DAILY_ALERT_LIMIT", "3")
}

// TeardownTestEnv cleans up environment variables after testing
func (h *TestHelper) TeardownTestEnv() {
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("FREE_DAILY_ALERT_LIMIT")
}

// AssertError checks if an error occurred when it should (or shouldn't)
func (h *TestHelper) AssertError(err error, shouldErr bool, testName string) {
	if (err != nil) != shouldErr {
		if shouldErr {
			h.t.Errorf("%s: expected error but got nil", testName)
		} else {
			h.t.Errorf("%s: unexpected error: %v", testName, err)
		}
	}
}

// AssertEqual checks if two values are equal
func (h *TestHelper) AssertEqual(got, want interface{}, testName string) {
	if got != want {
		h.t.Errorf("%s: got %v, want %v", testName, got, want)
	}
}

// AssertNotNil checks if a value is not nil
func (h *TestHelper) AssertNotNil(value interface{}, testName string) {
	if value == nil {
		h.t.Errorf("%s: expected non-nil value", testName)
	}
}

// GetRecordNotFoundError returns gorm's not-found sentinel for mocks
func GetRecordNotFoundError() error {
	return gorm.ErrRecordNotFound
}
