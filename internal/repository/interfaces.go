package repository

import (
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
)

// AlertRepositoryInterface is the durable side of the alert store. An
// alert row mutates only through MarkRead and SetResponse, each of which
// is a single conditional UPDATE.
type AlertRepositoryInterface interface {
	Create(alert *models.Alert) error
	FindByID(id uint) (*models.Alert, error)
	// FindByClientID locates the fan-out row a retried send collided
	// with on the (client_id, sender_id, receiver_id) unique index.
	FindByClientID(clientID string, senderID, receiverID uint) (*models.Alert, error)
	FindByReceiver(userID uint, limit int) ([]models.Alert, error)
	FindBySender(userID uint, limit int) ([]models.Alert, error)
	// MarkRead sets read_at iff it is currently null; reports whether
	// this call performed the write.
	MarkRead(id uint, at time.Time) (bool, error)
	// SetResponse records the reply and stamps read_at if still unset.
	SetResponse(id uint, response models.AlertResponse, responseMessage *string, at time.Time) error
}

// PlateRepositoryInterface backs the plate directory.
type PlateRepositoryInterface interface {
	Create(reg *models.PlateRegistration) error
	FindByID(id uint) (*models.PlateRegistration, error)
	FindByOwner(userID uint) ([]models.PlateRegistration, error)
	DeleteOwned(id uint, ownerUserID uint) (bool, error)
	// ResolveOwners returns the distinct user IDs registered to a
	// plate fingerprint.
	ResolveOwners(plateHash string) ([]uint, error)
}

// EntitlementRepositoryInterface provides storage-level atomicity for
// quota accounting. ConsumeIfUnder and ResetWindowIfExpired are each a
// single conditional UPDATE so concurrent sessions cannot over-grant.
type EntitlementRepositoryInterface interface {
	GetOrCreate(userID uint, windowStart time.Time) (*models.EntitlementState, error)
	Get(userID uint) (*models.EntitlementState, error)
	SetTier(userID uint, tier models.EntitlementTier) error
	ResetWindowIfExpired(userID uint, expiredBefore time.Time, newStart time.Time) error
	ConsumeIfUnder(userID uint, quota int) (bool, error)
}

// AckMarkerRepositoryInterface stores sender-side acknowledgment state.
type AckMarkerRepositoryInterface interface {
	Ensure(userID, alertID uint) error
	// MarkAcknowledged flips the marker true iff it is still false;
	// reports whether this call performed the flip.
	MarkAcknowledged(userID, alertID uint, at time.Time) (bool, error)
	FindByUser(userID uint) ([]models.AckMarker, error)
}

// PendingAlertRepositoryInterface is the offline delivery queue.
type PendingAlertRepositoryInterface interface {
	Enqueue(userID, alertID uint, payload string, priority int) error
	GetPendingForUser(userID uint, limit int) ([]models.PendingAlert, error)
	GetRetryable(limit int) ([]models.PendingAlert, error)
	MarkAttempted(id uint, attempts int, nextRetry *time.Time) error
	Delete(id uint) error
	DeleteBatch(ids []uint) error
	CountPendingForUser(userID uint) (int64, error)
	CleanupOld(olderThan time.Duration) error
}

type UserRepositoryInterface interface {
	Create(user *models.User) error
	FindByEmail(email string) (*models.User, error)
	FindByUsername(username string) (*models.User, error)
	FindByID(id uint) (*models.User, error)
	UpdateOnlineStatus(userID uint, isOnline bool) error
}

type RefreshTokenRepositoryInterface interface {
	Create(token *models.RefreshToken) error
	FindValidByHash(tokenHash string) (*models.RefreshToken, error)
	RevokeByHash(tokenHash string) error
}
