package service

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
)

// MockUserRepository is an in-memory UserRepositoryInterface for testing
type MockUserRepository struct {
	users  map[uint]*models.User
	nextID uint
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:  make(map[uint]*models.User),
		nextID: 1,
	}
}

func (m *MockUserRepository) Create(user *models.User) error {
	if user.ID == 0 {
		user.ID = m.nextID
		m.nextID++
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *MockUserRepository) FindByEmail(email string) (*models.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockUserRepository) FindByUsername(username string) (*models.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockUserRepository) FindByID(id uint) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockUserRepository) UpdateOnlineStatus(userID uint, isOnline bool) error {
	if user, ok := m.users[userID]; ok {
		user.IsOnline = isOnline
	}
	return nil
}

// MockRefreshTokenRepository is an in-memory RefreshTokenRepositoryInterface
type MockRefreshTokenRepository struct {
	tokens map[string]*models.RefreshToken
	nextID uint
}

func NewMockRefreshTokenRepository() *MockRefreshTokenRepository {
	return &MockRefreshTokenRepository{
		tokens: make(map[string]*models.RefreshToken),
		nextID: 1,
	}
}

func (m *MockRefreshTokenRepository) Create(token *models.RefreshToken) error {
	if token.ID == 0 {
		token.ID = m.nextID
		m.nextID++
	}
	copied := *token
	m.tokens[token.TokenHash] = &copied
	return nil
}

func (m *MockRefreshTokenRepository) FindValidByHash(tokenHash string) (*models.RefreshToken, error) {
	if token, ok := m.tokens[tokenHash]; ok && !token.IsRevoked() {
		copied := *token
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockRefreshTokenRepository) RevokeByHash(tokenHash string) error {
	if token, ok := m.tokens[tokenHash]; ok {
		now := time.Now()
		token.RevokedAt = &now
	}
	return nil
}

func newAuthServiceForTest() (*AuthService, *MockUserRepository, *MockEntitlementRepository) {
	userRepo := NewMockUserRepository()
	refreshRepo := NewMockRefreshTokenRepository()
	entitlementRepo := NewMockEntitlementRepository()
	return NewAuthService(userRepo, refreshRepo, entitlementRepo), userRepo, entitlementRepo
}

func TestRegister(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	svc, _, entitlementRepo := newAuthServiceForTest()

	tests := []struct {
		name      string
		input     RegisterInput
		shouldErr bool
	}{
		{
			name: "Valid registration",
			input: RegisterInput{
				Username: "driver42",
				Email:    "driver@example.com",
				Password: "longenoughpassword",
			},
		},
		{
			name: "Duplicate email",
			input: RegisterInput{
				Username: "otherdriver",
				Email:    "driver@example.com",
				Password: "longenoughpassword",
			},
			shouldErr: true,
		},
		{
			name: "Duplicate username",
			input: RegisterInput{
				Username: "driver42",
				Email:    "fresh@example.com",
				Password: "longenoughpassword",
			},
			shouldErr: true,
		},
		{
			name: "Invalid email",
			input: RegisterInput{
				Username: "driver43",
				Email:    "not-an-email",
				Password: "longenoughpassword",
			},
			shouldErr: true,
		},
		{
			name: "Short password",
			input: RegisterInput{
				Username: "driver44",
				Email:    "short@example.com",
				Password: "short",
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Register(tt.input)
			if (err != nil) != tt.shouldErr {
				t.Fatalf("Register error = %v, wantErr %v", err, tt.shouldErr)
			}
			if tt.shouldErr {
				return
			}
			if result.AccessToken == "" || result.RefreshToken == "" {
				t.Error("registration did not issue both tokens")
			}
			// Registration seeds a free-tier entitlement row.
			state, err := entitlementRepo.Get(result.User.ID)
			if err != nil {
				t.Fatalf("entitlement state missing after registration: %v", err)
			}
			if state.Tier != models.TierFree {
				t.Errorf("new account tier = %s, want free", state.Tier)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	svc, _, _ := newAuthServiceForTest()
	if _, err := svc.Register(RegisterInput{
		Username: "driver42",
		Email:    "driver@example.com",
		Password: "longenoughpassword",
	}); err != nil {
		t.Fatalf("setup registration failed: %v", err)
	}

	if _, err := svc.Login(LoginInput{Email: "Driver@Example.com", Password: "longenoughpassword"}); err != nil {
		t.Errorf("login with normalized email failed: %v", err)
	}
	if _, err := svc.Login(LoginInput{Email: "driver@example.com", Password: "wrongpassword"}); err == nil {
		t.Error("login with wrong password succeeded")
	}
	if _, err := svc.Login(LoginInput{Email: "nobody@example.com", Password: "longenoughpassword"}); err == nil {
		t.Error("login for unknown account succeeded")
	}
}

func TestRefreshRotation(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	svc, _, _ := newAuthServiceForTest()
	registered, err := svc.Register(RegisterInput{
		Username: "driver42",
		Email:    "driver@example.com",
		Password: "longenoughpassword",
	})
	if err != nil {
		t.Fatalf("setup registration failed: %v", err)
	}

	rotated, err := svc.Refresh(registered.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh unexpected error: %v", err)
	}
	if rotated.RefreshToken == registered.RefreshToken {
		t.Error("refresh did not rotate the token")
	}

	// The presented token was revoked during rotation.
	if _, err := svc.Refresh(registered.RefreshToken); err == nil {
		t.Error("revoked refresh token accepted")
	}

	if err := svc.Logout(rotated.RefreshToken); err != nil {
		t.Fatalf("Logout unexpected error: %v", err)
	}
	if _, err := svc.Refresh(rotated.RefreshToken); err == nil {
		t.Error("refresh token accepted after logout")
	}
}
