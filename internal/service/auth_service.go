package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/repository"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/validation"
)

const (
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

type AuthService struct {
	userRepo        repository.UserRepositoryInterface
	refreshRepo     repository.RefreshTokenRepositoryInterface
	entitlementRepo repository.EntitlementRepositoryInterface
}

func NewAuthService(userRepo repository.UserRepositoryInterface, refreshRepo repository.RefreshTokenRepositoryInterface, entitlementRepo repository.EntitlementRepositoryInterface) *AuthService {
	return &AuthService{
		userRepo:        userRepo,
		refreshRepo:     refreshRepo,
		entitlementRepo: entitlementRepo,
	}
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	User         models.UserResponse `json:"user"`
}

func (s *AuthService) Register(input RegisterInput) (*AuthResponse, error) {
	input.Email = validation.NormalizeEmail(input.Email)
	if !validation.ValidateEmail(input.Email) {
		return nil, errors.New("invalid email")
	}
	if !validation.ValidateUsername(input.Username) {
		return nil, errors.New("invalid username")
	}
	if !validation.ValidatePassword(input.Password) {
		return nil, errors.New("password too short")
	}

	if _, err := s.userRepo.FindByEmail(input.Email); err == nil {
		return nil, errors.New("email already exists")
	}
	if _, err := s.userRepo.FindByUsername(input.Username); err == nil {
		return nil, errors.New("username already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	// Every account starts with a free-tier entitlement row so the
	// gate's conditional updates always have a row to hit.
	if _, err := s.entitlementRepo.GetOrCreate(user.ID, time.Now()); err != nil {
		return nil, err
	}

	return s.issueTokens(user)
}

func (s *AuthService) Login(input LoginInput) (*AuthResponse, error) {
	user, err := s.userRepo.FindByEmail(validation.NormalizeEmail(input.Email))
	if err != nil {
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, errors.New("invalid credentials")
	}
	return s.issueTokens(user)
}

// Refresh rotates the refresh token: the presented one is revoked and a
// fresh pair is issued.
func (s *AuthService) Refresh(refreshToken string) (*AuthResponse, error) {
	hash := hashToken(refreshToken)
	stored, err := s.refreshRepo.FindValidByHash(hash)
	if err != nil {
		return nil, errors.New("invalid refresh token")
	}

	user, err := s.userRepo.FindByID(stored.UserID)
	if err != nil {
		return nil, errors.New("invalid refresh token")
	}

	if err := s.refreshRepo.RevokeByHash(hash); err != nil {
		return nil, err
	}
	return s.issueTokens(user)
}

func (s *AuthService) Logout(refreshToken string) error {
	return s.refreshRepo.RevokeByHash(hashToken(refreshToken))
}

func (s *AuthService) issueTokens(user *models.User) (*AuthResponse, error) {
	access, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	refresh := hex.EncodeToString(raw)

	if err := s.refreshRepo.Create(&models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}); err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.ToResponse(),
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().Add(accessTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
