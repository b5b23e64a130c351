package stream

import "github.com/Deze-Tingz/yuh-blockin-backend/internal/models"

// EventKind distinguishes the feed an alert snapshot arrived on, plus
// the one-shot "answered" notification emitted when a sender's alert
// acquires its response.
type EventKind string

const (
	EventIncoming EventKind = "incoming"
	EventOutgoing EventKind = "outgoing"
	EventAnswered EventKind = "answered"
)

// AlertEvent is the envelope written to WebSocket sessions and cached
// in the offline delivery queue. Attention marks whether the session
// should surface an attention-grabbing presentation; it is decided
// per-session by the delivery deduplicator, never stored.
type AlertEvent struct {
	Type      string              `json:"type"`
	Event     EventKind           `json:"event"`
	Attention bool                `json:"attention"`
	Alert     models.AlertPayload `json:"alert"`
}

func NewAlertEvent(kind EventKind, alert models.Alert) AlertEvent {
	return AlertEvent{
		Type:  "alert",
		Event: kind,
		Alert: alert.ToPayload(),
	}
}
