package ws

import (
	"errors"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/service"
)

// MessageAlertSend asks the server to alert the owners of a blocking
// vehicle. Plate (raw) or PlateHash (pre-fingerprinted) identifies the
// vehicle; ClientID lets the client correlate the reply.
type MessageAlertSend struct {
	Plate     string `json:"plate"`
	PlateHash string `json:"plate_hash"`
	Message   string `json:"message"`
	ClientID  string `json:"client_id"`
}

func (msg *MessageAlertSend) GetType() string {
	return "alert.send"
}

func (msg *MessageAlertSend) Process(ctx *MessageContext) error {
	// Fail fast while offline instead of letting the send hang on a
	// half-dead transport.
	if err := ctx.Reconciler.Guard(); err != nil {
		return SendError(ctx.Client, "OFFLINE", "connection is offline", "")
	}

	result, err := ctx.Alerts.SendAlert(ctx.UserID, service.SendAlertInput{
		Plate:     msg.Plate,
		PlateHash: msg.PlateHash,
		Message:   msg.Message,
		ClientID:  msg.ClientID,
	})

	var partial *apperr.PartialFailure
	switch {
	case err == nil:
	case errors.As(err, &partial):
		// Some recipients got their row; report what succeeded and
		// flag the rest.
		if werr := SendError(ctx.Client, "PARTIAL_FAILURE", "alert reached only some recipients", err.Error()); werr != nil {
			return werr
		}
	case errors.Is(err, apperr.ErrValidation):
		return SendError(ctx.Client, "VALIDATION", err.Error(), "")
	case errors.Is(err, apperr.ErrRateLimitExceeded):
		return SendError(ctx.Client, "RATE_LIMIT", "daily alert limit reached", "")
	case errors.Is(err, apperr.ErrNotFound):
		return SendError(ctx.Client, "NOT_FOUND", "no owners registered for that plate", "")
	default:
		return SendError(ctx.Client, "PERSISTENCE", "failed to send alert", err.Error())
	}

	return ctx.Client.WriteJSON(map[string]interface{}{
		"type":            "alert.sent",
		"client_id":       msg.ClientID,
		"alert_ids":       result.AlertIDs,
		"recipient_count": result.RecipientCount,
		"quota_remaining": result.QuotaRemaining,
	})
}

// MessageAlertRead marks a received alert as read. Idempotent: the
// first read sticks.
type MessageAlertRead struct {
	AlertID uint `json:"alert_id"`
}

func (msg *MessageAlertRead) GetType() string {
	return "alert.read"
}

func (msg *MessageAlertRead) Process(ctx *MessageContext) error {
	if err := ctx.Alerts.MarkAlertRead(ctx.UserID, msg.AlertID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return SendError(ctx.Client, "NOT_FOUND", "alert not found", "")
		}
		return SendError(ctx.Client, "PERSISTENCE", "failed to mark alert read", err.Error())
	}
	return ctx.Client.WriteJSON(map[string]interface{}{
		"type":     "alert.read.ok",
		"alert_id": msg.AlertID,
	})
}

// MessageAlertRespond records the receiver's reply to an alert.
type MessageAlertRespond struct {
	AlertID  uint   `json:"alert_id"`
	Response string `json:"response"`
	Message  string `json:"message"`
}

func (msg *MessageAlertRespond) GetType() string {
	return "alert.respond"
}

func (msg *MessageAlertRespond) Process(ctx *MessageContext) error {
	if err := ctx.Alerts.SendResponse(ctx.UserID, msg.AlertID, msg.Response, msg.Message); err != nil {
		switch {
		case errors.Is(err, apperr.ErrValidation):
			return SendError(ctx.Client, "VALIDATION", err.Error(), "")
		case errors.Is(err, apperr.ErrNotFound):
			return SendError(ctx.Client, "NOT_FOUND", "alert not found", "")
		case errors.Is(err, apperr.ErrAlreadyResponded):
			return SendError(ctx.Client, "ALREADY_RESPONDED", "alert already has a response", "")
		default:
			return SendError(ctx.Client, "PERSISTENCE", "failed to record response", err.Error())
		}
	}
	return ctx.Client.WriteJSON(map[string]interface{}{
		"type":     "alert.respond.ok",
		"alert_id": msg.AlertID,
	})
}

// MessageReconcile runs an on-demand acknowledgment reconciliation
// pass. Clients send it when they suspect a stream gap; running it
// twice in a row is harmless.
type MessageReconcile struct {
}

func (msg *MessageReconcile) GetType() string {
	return "reconcile"
}

func (msg *MessageReconcile) Process(ctx *MessageContext) error {
	acknowledged, err := ctx.Tracker.Reconcile(ctx.UserID)
	if err != nil {
		return SendError(ctx.Client, "PERSISTENCE", "reconciliation failed", err.Error())
	}
	return ctx.Client.WriteJSON(map[string]interface{}{
		"type":         "reconciled",
		"acknowledged": acknowledged,
	})
}
