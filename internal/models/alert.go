package models

import (
	"time"

	"gorm.io/gorm"
)

// AlertResponse is the closed set of replies a receiver may send.
// ResponseUnrecognized is the fallback for values written by newer or
// older clients so strict matching never panics on unknown input.
type AlertResponse string

const (
	ResponseMovingNow    AlertResponse = "moving_now"
	ResponseFiveMinutes  AlertResponse = "5_minutes"
	ResponseCantMove     AlertResponse = "cant_move"
	ResponseWrongCar     AlertResponse = "wrong_car"
	ResponseUnrecognized AlertResponse = "unrecognized"
)

// ParseAlertResponse maps a wire value onto the closed enum. The second
// return value is false when the value was not recognized.
func ParseAlertResponse(s string) (AlertResponse, bool) {
	switch AlertResponse(s) {
	case ResponseMovingNow, ResponseFiveMinutes, ResponseCantMove, ResponseWrongCar:
		return AlertResponse(s), true
	default:
		return ResponseUnrecognized, false
	}
}

// Alert is one notification from one sender to one receiver about one
// plate. A plate with several registered owners fans out to one row per
// owner. Only ReadAt, Response, ResponseMessage and RespondedAt mutate
// after insert.
type Alert struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Client-generated UUID so a retried send is not duplicated. The
	// fan-out rows of one send share it, hence receiver is part of the
	// uniqueness.
	ClientID string `gorm:"type:varchar(36);uniqueIndex:idx_alert_client_fanout" json:"client_id"`

	SenderID   uint `gorm:"not null;uniqueIndex:idx_alert_client_fanout;index" json:"sender_id"`
	Sender     User `gorm:"foreignKey:SenderID" json:"-"`
	ReceiverID uint `gorm:"not null;uniqueIndex:idx_alert_client_fanout;index" json:"receiver_id"`

	// One-way fingerprint of the plate; the raw plate is never stored.
	PlateHash string `gorm:"type:varchar(64);not null;index" json:"plate_hash"`

	Message string `gorm:"type:varchar(280)" json:"message"`

	Response        *AlertResponse `gorm:"type:varchar(20)" json:"response"`
	ResponseMessage *string        `gorm:"type:varchar(280)" json:"response_message"`

	ReadAt      *time.Time `json:"read_at"`
	RespondedAt *time.Time `gorm:"column:response_at" json:"response_at"`
}

func (a *Alert) IsRead() bool {
	return a.ReadAt != nil
}

func (a *Alert) IsResponded() bool {
	return a.Response != nil
}

// IsFresh reports whether the alert is young enough to still warrant an
// attention-grabbing presentation.
func (a *Alert) IsFresh(now time.Time, window time.Duration) bool {
	return now.Sub(a.CreatedAt) < window
}

// AlertPayload is the wire representation pushed to sessions and
// returned from the HTTP surface.
type AlertPayload struct {
	ID              uint           `json:"id"`
	ClientID        string         `json:"client_id"`
	SenderID        uint           `json:"sender_id"`
	ReceiverID      uint           `json:"receiver_id"`
	PlateHash       string         `json:"plate_hash"`
	Message         string         `json:"message"`
	Response        *AlertResponse `json:"response"`
	ResponseMessage *string        `json:"response_message"`
	CreatedAt       time.Time      `json:"created_at"`
	ReadAt          *time.Time     `json:"read_at"`
	RespondedAt     *time.Time     `json:"response_at"`
}

func (a *Alert) ToPayload() AlertPayload {
	return AlertPayload{
		ID:              a.ID,
		ClientID:        a.ClientID,
		SenderID:        a.SenderID,
		ReceiverID:      a.ReceiverID,
		PlateHash:       a.PlateHash,
		Message:         a.Message,
		Response:        a.Response,
		ResponseMessage: a.ResponseMessage,
		CreatedAt:       a.CreatedAt,
		ReadAt:          a.ReadAt,
		RespondedAt:     a.RespondedAt,
	}
}
