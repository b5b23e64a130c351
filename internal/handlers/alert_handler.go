package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/httpx"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/service"
)

type AlertHandler struct {
	alertService *service.AlertService
	tracker      *service.AcknowledgmentTracker
}

func NewAlertHandler(alertService *service.AlertService, tracker *service.AcknowledgmentTracker) *AlertHandler {
	return &AlertHandler{alertService: alertService, tracker: tracker}
}

// alertError maps the service error taxonomy onto HTTP statuses.
func alertError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return httpx.BadRequest(c, "validation", err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return httpx.NotFound(c, "not_found", err.Error())
	case errors.Is(err, apperr.ErrRateLimitExceeded):
		return httpx.TooManyRequests(c, "rate_limit", "Daily alert limit reached")
	case errors.Is(err, apperr.ErrAlreadyResponded):
		return httpx.Conflict(c, "already_responded", "Alert already has a response")
	case errors.Is(err, apperr.ErrNetwork):
		return httpx.ServiceUnavailable(c, "offline", "Connection is offline")
	default:
		return httpx.Internal(c, "persistence")
	}
}

func (h *AlertHandler) SendAlert(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	var input service.SendAlertInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	result, err := h.alertService.SendAlert(userID, input)
	var partial *apperr.PartialFailure
	if errors.As(err, &partial) {
		// Some rows made it; report both sides rather than pretending
		// it was all-or-nothing.
		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"result":       result,
			"failed_count": len(partial.Failed),
		})
	}
	if err != nil {
		return alertError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *AlertHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	alertID, err := c.ParamsInt("id")
	if err != nil || alertID <= 0 {
		return httpx.BadRequest(c, "invalid_id", "Invalid alert id")
	}

	if err := h.alertService.MarkAlertRead(userID, uint(alertID)); err != nil {
		return alertError(c, err)
	}
	return c.JSON(fiber.Map{"alert_id": alertID, "read": true})
}

type respondInput struct {
	Response string `json:"response"`
	Message  string `json:"response_message"`
}

func (h *AlertHandler) Respond(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	alertID, err := c.ParamsInt("id")
	if err != nil || alertID <= 0 {
		return httpx.BadRequest(c, "invalid_id", "Invalid alert id")
	}

	var input respondInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_body", "Invalid request body")
	}

	if err := h.alertService.SendResponse(userID, uint(alertID), input.Response, input.Message); err != nil {
		return alertError(c, err)
	}
	return c.JSON(fiber.Map{"alert_id": alertID, "responded": true})
}

func (h *AlertHandler) Received(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	alerts, err := h.alertService.ReceivedAlerts(userID, c.QueryInt("limit", 50))
	if err != nil {
		return alertError(c, err)
	}
	return c.JSON(fiber.Map{"alerts": alerts, "count": len(alerts)})
}

func (h *AlertHandler) Sent(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	alerts, err := h.alertService.SentAlerts(userID, c.QueryInt("limit", 50))
	if err != nil {
		return alertError(c, err)
	}
	return c.JSON(fiber.Map{"alerts": alerts, "count": len(alerts)})
}

func (h *AlertHandler) UnacknowledgedCount(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	counts, err := h.tracker.Counts(userID)
	if err != nil {
		return alertError(c, err)
	}
	return c.JSON(counts)
}

func (h *AlertHandler) Reconcile(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Not authenticated")
	}

	acknowledged, err := h.tracker.Reconcile(userID)
	if err != nil {
		return alertError(c, err)
	}
	return c.JSON(fiber.Map{"acknowledged": acknowledged})
}
