package service

import (
	"fmt"
	"log"
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/repository"
)

// reconcileScanLimit bounds how many sent alerts one reconciliation
// pass inspects.
const reconcileScanLimit = 500

// AcknowledgmentTracker maintains the sender-side markers for alerts
// awaiting a response. A marker flips to acknowledged exactly once, no
// matter how many times the same response event is observed; the
// conditional UPDATE in the marker repository is the arbiter.
type AcknowledgmentTracker struct {
	alertRepo repository.AlertRepositoryInterface
	ackRepo   repository.AckMarkerRepositoryInterface
	// onAcknowledged fires once per marker flip ("your alert was
	// answered" side effect). Optional.
	onAcknowledged func(alert models.Alert)
	now            func() time.Time
}

func NewAcknowledgmentTracker(alertRepo repository.AlertRepositoryInterface, ackRepo repository.AckMarkerRepositoryInterface) *AcknowledgmentTracker {
	return &AcknowledgmentTracker{
		alertRepo: alertRepo,
		ackRepo:   ackRepo,
		now:       time.Now,
	}
}

// OnAcknowledged installs the exactly-once side effect hook.
func (t *AcknowledgmentTracker) OnAcknowledged(fn func(alert models.Alert)) {
	t.onAcknowledged = fn
}

// Observe processes one snapshot from a sender's outgoing stream.
// Returns true when this observation acknowledged the alert; duplicate
// deliveries of the same response event return false.
func (t *AcknowledgmentTracker) Observe(userID uint, alert models.Alert) (bool, error) {
	if alert.SenderID != userID || !alert.IsResponded() {
		return false, nil
	}

	// Marker may be missing if the send-time bookkeeping failed.
	if err := t.ackRepo.Ensure(userID, alert.ID); err != nil {
		return false, fmt.Errorf("%w: ensuring ack marker for alert %d: %v", apperr.ErrPersistence, alert.ID, err)
	}

	flipped, err := t.ackRepo.MarkAcknowledged(userID, alert.ID, t.now())
	if err != nil {
		return false, fmt.Errorf("%w: acknowledging alert %d: %v", apperr.ErrPersistence, alert.ID, err)
	}
	if flipped && t.onAcknowledged != nil {
		t.onAcknowledged(alert)
	}
	return flipped, nil
}

// Reconcile pulls the authoritative list of sent alerts and re-applies
// the "acknowledge if responded" rule, repairing anything missed while
// the stream was down. Idempotent: a second run right after the first
// acknowledges nothing. Serves both the periodic poll and the
// reconnect trigger; they are deliberately the same operation.
func (t *AcknowledgmentTracker) Reconcile(userID uint) (int, error) {
	sent, err := t.alertRepo.FindBySender(userID, reconcileScanLimit)
	if err != nil {
		return 0, fmt.Errorf("%w: listing sent alerts: %v", apperr.ErrPersistence, err)
	}

	acknowledged := 0
	for _, alert := range sent {
		if !alert.IsResponded() {
			continue
		}
		flipped, err := t.Observe(userID, alert)
		if err != nil {
			log.Printf("reconcile: acknowledging alert %d failed: %v", alert.ID, err)
			continue
		}
		if flipped {
			acknowledged++
		}
	}
	return acknowledged, nil
}

// AckCounts is the badge-level summary for a user: responses they have
// not yet acknowledged on alerts they sent, and received alerts still
// awaiting their own response.
type AckCounts struct {
	Unacknowledged   int `json:"unacknowledged"`
	AwaitingResponse int `json:"awaiting_response"`
}

func (t *AcknowledgmentTracker) Counts(userID uint) (*AckCounts, error) {
	sent, err := t.alertRepo.FindBySender(userID, reconcileScanLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sent alerts: %v", apperr.ErrPersistence, err)
	}
	markers, err := t.ackRepo.FindByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing ack markers: %v", apperr.ErrPersistence, err)
	}

	acked := make(map[uint]bool, len(markers))
	for _, m := range markers {
		acked[m.AlertID] = m.Acknowledged
	}

	counts := &AckCounts{}
	for _, alert := range sent {
		if alert.IsResponded() && alert.RespondedAt != nil && !acked[alert.ID] {
			counts.Unacknowledged++
		}
	}

	received, err := t.alertRepo.FindByReceiver(userID, reconcileScanLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing received alerts: %v", apperr.ErrPersistence, err)
	}
	for _, alert := range received {
		if !alert.IsResponded() {
			counts.AwaitingResponse++
		}
	}
	return counts, nil
}
