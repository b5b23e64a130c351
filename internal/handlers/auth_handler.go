package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/httpx"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input service.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	if input.Email == "" || input.Password == "" || input.Username == "" {
		return httpx.BadRequest(c, "missing_fields", "Email, username, and password are required")
	}

	result, err := h.authService.Register(input)
	if err != nil {
		return httpx.BadRequest(c, "registration_failed", err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input service.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	if input.Email == "" || input.Password == "" {
		return httpx.BadRequest(c, "missing_fields", "Email and password are required")
	}

	result, err := h.authService.Login(input)
	if err != nil {
		return httpx.Unauthorized(c, "invalid_credentials", err.Error())
	}

	return c.JSON(result)
}

type refreshInput struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var input refreshInput
	if err := c.BodyParser(&input); err != nil || input.RefreshToken == "" {
		return httpx.BadRequest(c, "invalid_body", "refresh_token is required")
	}

	result, err := h.authService.Refresh(input.RefreshToken)
	if err != nil {
		return httpx.Unauthorized(c, "invalid_refresh_token", err.Error())
	}

	return c.JSON(result)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var input refreshInput
	if err := c.BodyParser(&input); err != nil || input.RefreshToken == "" {
		return httpx.BadRequest(c, "invalid_body", "refresh_token is required")
	}

	if err := h.authService.Logout(input.RefreshToken); err != nil {
		return httpx.Internal(c, "logout_failed")
	}

	return c.SendStatus(fiber.StatusNoContent)
}
