package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/httpx"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/service"
)

type PlateHandler struct {
	plateService *service.PlateService
}

func NewPlateHandler(plateService *service.PlateService) *PlateHandler {
	return &PlateHandler{plateService: plateService}
}

func (h *PlateHandler) RegisterPlate(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	var input service.RegisterPlateInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	reg, err := h.plateService.RegisterPlate(userID, input)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return httpx.BadRequest(c, "validation", err.Error())
		}
		return httpx.Internal(c, "persistence")
	}
	return c.Status(fiber.StatusCreated).JSON(reg)
}

func (h *PlateHandler) ListPlates(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	regs, err := h.plateService.ListPlates(userID)
	if err != nil {
		return httpx.Internal(c, "persistence")
	}
	return c.JSON(fiber.Map{"plates": regs, "count": len(regs)})
}

func (h *PlateHandler) RemovePlate(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return httpx.BadRequest(c, "invalid_id", "Invalid registration id")
	}

	if err := h.plateService.RemovePlate(userID, uint(id)); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return httpx.NotFound(c, "not_found", "Plate registration not found")
		}
		return httpx.Internal(c, "persistence")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
