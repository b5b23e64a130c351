package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/httpx"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/service"
)

type EntitlementHandler struct {
	gate *service.EntitlementGate
}

func NewEntitlementHandler(gate *service.EntitlementGate) *EntitlementHandler {
	return &EntitlementHandler{gate: gate}
}

func (h *EntitlementHandler) GetEntitlement(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	snap, err := h.gate.Snapshot(userID)
	if err != nil {
		return httpx.Internal(c, "persistence")
	}
	return c.JSON(snap)
}

type tierInput struct {
	Tier string `json:"tier"`
}

// SetTier records a tier change. The purchase flow itself lives with
// the store provider; this endpoint only trusts its webhook relay.
func (h *EntitlementHandler) SetTier(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	var input tierInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	tier := models.EntitlementTier(input.Tier)
	switch tier {
	case models.TierFree, models.TierPremium, models.TierLifetime:
	default:
		return httpx.BadRequest(c, "invalid_tier", "Unknown tier")
	}

	if err := h.gate.SetTier(userID, tier); err != nil {
		return httpx.Internal(c, "persistence")
	}

	snap, err := h.gate.Snapshot(userID)
	if err != nil {
		return httpx.Internal(c, "persistence")
	}
	return c.JSON(snap)
}
