package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/repository"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/stream"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/validation"
)

// ResponsePolicy decides what happens when a receiver submits a second
// response to the same alert.
type ResponsePolicy string

const (
	// LastWriteWins overwrites the earlier response and logs it as a
	// notable event. This is the default.
	LastWriteWins ResponsePolicy = "last_write"
	// FirstWriteWins rejects the resubmission with a conflict.
	FirstWriteWins ResponsePolicy = "first_write"
)

func ResponsePolicyFromEnv() ResponsePolicy {
	if ResponsePolicy(os.Getenv("RESPONSE_OVERWRITE_POLICY")) == FirstWriteWins {
		return FirstWriteWins
	}
	return LastWriteWins
}

// QuotaGate is the slice of the entitlement gate the alert write path
// needs: one atomic consume per send attempt.
type QuotaGate interface {
	TryConsume(userID uint) (*ConsumeResult, error)
}

// AlertPublisher pushes a row snapshot to live subscriptions and
// reports how many receiver-side feeds took it.
type AlertPublisher interface {
	Publish(alert models.Alert) int
}

// AlertService is the only write path for alert rows: creation
// (fan-out), reads and responses all go through here.
type AlertService struct {
	alertRepo   repository.AlertRepositoryInterface
	plateRepo   repository.PlateRepositoryInterface
	ackRepo     repository.AckMarkerRepositoryInterface
	pendingRepo repository.PendingAlertRepositoryInterface
	gate        QuotaGate
	publisher   AlertPublisher
	policy      ResponsePolicy
	now         func() time.Time
}

func NewAlertService(
	alertRepo repository.AlertRepositoryInterface,
	plateRepo repository.PlateRepositoryInterface,
	ackRepo repository.AckMarkerRepositoryInterface,
	pendingRepo repository.PendingAlertRepositoryInterface,
	gate QuotaGate,
	publisher AlertPublisher,
	policy ResponsePolicy,
) *AlertService {
	return &AlertService{
		alertRepo:   alertRepo,
		plateRepo:   plateRepo,
		ackRepo:     ackRepo,
		pendingRepo: pendingRepo,
		gate:        gate,
		publisher:   publisher,
		policy:      policy,
		now:         time.Now,
	}
}

type SendAlertInput struct {
	// Either a raw plate (fingerprinted server-side) or a ready-made
	// fingerprint; Plate wins when both are set.
	Plate     string `json:"plate"`
	PlateHash string `json:"plate_hash"`
	Message   string `json:"message"`
	ClientID  string `json:"client_id"`
}

type SendAlertResult struct {
	AlertIDs       []uint `json:"alert_ids"`
	RecipientCount int    `json:"recipient_count"`
	QuotaRemaining int    `json:"quota_remaining"`
}

// SendAlert runs the full send pipeline: quota gate, owner resolution,
// fan-out insert (one row per distinct owner), live delivery. The gate
// runs first so an out-of-quota sender never touches alert storage. The
// fan-out is not transactional across rows; a partial failure comes
// back as *apperr.PartialFailure alongside the partial result.
func (s *AlertService) SendAlert(senderID uint, input SendAlertInput) (*SendAlertResult, error) {
	plateHash := input.PlateHash
	if input.Plate != "" {
		if !validation.ValidatePlate(input.Plate) {
			return nil, apperr.Validation("malformed plate %q", input.Plate)
		}
		plateHash = validation.PlateFingerprint(input.Plate)
	}
	if !validation.ValidatePlateHash(plateHash) {
		return nil, apperr.Validation("malformed plate fingerprint")
	}

	message := validation.TrimAndLimit(input.Message, validation.MaxAlertMessageLength())
	clientID := input.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	consume, err := s.gate.TryConsume(senderID)
	if err != nil {
		return nil, err
	}
	if !consume.Allowed {
		return nil, apperr.ErrRateLimitExceeded
	}

	ownerIDs, err := s.plateRepo.ResolveOwners(plateHash)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving plate owners: %v", apperr.ErrPersistence, err)
	}
	if len(ownerIDs) == 0 {
		return nil, fmt.Errorf("%w: no owners registered for plate", apperr.ErrNotFound)
	}

	now := s.now()
	succeeded := make([]uint, 0, len(ownerIDs))
	failed := make(map[uint]error)
	for _, ownerID := range dedupeIDs(ownerIDs) {
		alert := &models.Alert{
			ClientID:   clientID,
			SenderID:   senderID,
			ReceiverID: ownerID,
			PlateHash:  plateHash,
			Message:    message,
			CreatedAt:  now,
		}
		if err := s.alertRepo.Create(alert); err != nil {
			// The unique (client_id, sender_id, receiver_id) index turns
			// a retried send into a duplicate-key error; the original
			// row answers for this recipient.
			if isDuplicateKey(err) {
				if existing, lookupErr := s.alertRepo.FindByClientID(clientID, senderID, ownerID); lookupErr == nil {
					succeeded = append(succeeded, existing.ID)
					continue
				}
			}
			failed[ownerID] = err
			continue
		}
		succeeded = append(succeeded, alert.ID)

		// Sender-side marker so the acknowledgment tracker knows this
		// alert awaits a response. Bookkeeping only: log and continue.
		if err := s.ackRepo.Ensure(senderID, alert.ID); err != nil {
			log.Printf("ack marker create failed for alert %d: %v", alert.ID, err)
		}

		s.deliverNew(*alert)
	}

	if len(succeeded) == 0 {
		return nil, fmt.Errorf("%w: alert fan-out failed for all %d recipients", apperr.ErrPersistence, len(failed))
	}

	result := &SendAlertResult{
		AlertIDs:       succeeded,
		RecipientCount: len(succeeded),
		QuotaRemaining: consume.Remaining,
	}
	if len(failed) > 0 {
		return result, &apperr.PartialFailure{Succeeded: succeeded, Failed: failed}
	}
	return result, nil
}

// MarkAlertRead stamps read_at if it is still unset. Calling it again
// is a no-op: read_at never reverts and never moves. Only the alert's
// receiver may read it.
func (s *AlertService) MarkAlertRead(callerID, alertID uint) error {
	if _, err := s.findReceivedAlert(callerID, alertID); err != nil {
		return err
	}

	changed, err := s.alertRepo.MarkRead(alertID, s.now())
	if err != nil {
		return fmt.Errorf("%w: marking alert %d read: %v", apperr.ErrPersistence, alertID, err)
	}
	if changed {
		s.deliverUpdate(alertID)
	}
	return nil
}

// SendResponse records the receiver's reply. The response value must be
// in the closed enum; what happens on a second response is a policy
// choice (last-write-wins by default, logged rather than rejected).
// Only the alert's receiver may respond.
func (s *AlertService) SendResponse(callerID, alertID uint, responseValue string, responseMessage string) error {
	response, ok := models.ParseAlertResponse(responseValue)
	if !ok {
		return apperr.Validation("unrecognized response %q", responseValue)
	}

	alert, err := s.findReceivedAlert(callerID, alertID)
	if err != nil {
		return err
	}

	if alert.IsResponded() {
		if s.policy == FirstWriteWins {
			return apperr.ErrAlreadyResponded
		}
		log.Printf("alert %d response overwritten: %s -> %s", alertID, *alert.Response, response)
	}

	var msgPtr *string
	if trimmed := validation.TrimAndLimit(responseMessage, validation.MaxAlertMessageLength()); trimmed != "" {
		msgPtr = &trimmed
	}

	if err := s.alertRepo.SetResponse(alertID, response, msgPtr, s.now()); err != nil {
		return fmt.Errorf("%w: writing response for alert %d: %v", apperr.ErrPersistence, alertID, err)
	}

	s.deliverUpdate(alertID)
	return nil
}

func (s *AlertService) ReceivedAlerts(userID uint, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.alertRepo.FindByReceiver(userID, limit)
}

func (s *AlertService) SentAlerts(userID uint, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.alertRepo.FindBySender(userID, limit)
}

// findReceivedAlert loads an alert and checks the caller is its
// receiver. Anyone else gets NotFound: the row's existence is not
// revealed to users it was never addressed to.
func (s *AlertService) findReceivedAlert(callerID, alertID uint) (*models.Alert, error) {
	alert, err := s.alertRepo.FindByID(alertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: alert %d", apperr.ErrNotFound, alertID)
		}
		return nil, fmt.Errorf("%w: loading alert %d: %v", apperr.ErrPersistence, alertID, err)
	}
	if alert.ReceiverID != callerID {
		return nil, fmt.Errorf("%w: alert %d", apperr.ErrNotFound, alertID)
	}
	return alert, nil
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate")
}

// deliverNew pushes a freshly created alert to live sessions; when the
// receiver has none, the envelope goes to the offline queue for the
// next connect. Delivery is auxiliary to the already-durable insert, so
// failures here log and continue.
func (s *AlertService) deliverNew(alert models.Alert) {
	receiverSessions := 0
	if s.publisher != nil {
		receiverSessions = s.publisher.Publish(alert)
	}
	if receiverSessions > 0 || s.pendingRepo == nil {
		return
	}

	envelope, err := json.Marshal(stream.NewAlertEvent(stream.EventIncoming, alert))
	if err != nil {
		log.Printf("pending envelope marshal failed for alert %d: %v", alert.ID, err)
		return
	}
	if err := s.pendingRepo.Enqueue(alert.ReceiverID, alert.ID, string(envelope), 0); err != nil {
		log.Printf("pending enqueue failed for alert %d: %v", alert.ID, err)
	}
}

// deliverUpdate pushes the current state of a mutated row to both
// sides. Missed outgoing updates are repaired by reconciliation, so no
// offline queueing happens here.
func (s *AlertService) deliverUpdate(alertID uint) {
	if s.publisher == nil {
		return
	}
	alert, err := s.alertRepo.FindByID(alertID)
	if err != nil {
		log.Printf("reload for delivery failed, alert %d: %v", alertID, err)
		return
	}
	s.publisher.Publish(*alert)
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
