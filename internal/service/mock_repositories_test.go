package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
)

// MockAlertRepository is an in-memory AlertRepositoryInterface for testing
type MockAlertRepository struct {
	alerts map[uint]*models.Alert
	nextID uint
	// failForReceiver makes Create fail for specific receivers, used to
	// exercise partial fan-out failures.
	failForReceiver map[uint]error
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{
		alerts:          make(map[uint]*models.Alert),
		nextID:          1,
		failForReceiver: make(map[uint]error),
	}
}

func (m *MockAlertRepository) Create(alert *models.Alert) error {
	if err, ok := m.failForReceiver[alert.ReceiverID]; ok {
		return err
	}
	// Mirrors the unique (client_id, sender_id, receiver_id) index.
	for _, existing := range m.alerts {
		if existing.ClientID == alert.ClientID &&
			existing.SenderID == alert.SenderID &&
			existing.ReceiverID == alert.ReceiverID {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	if alert.ID == 0 {
		alert.ID = m.nextID
		m.nextID++
	}
	copied := *alert
	m.alerts[alert.ID] = &copied
	return nil
}

func (m *MockAlertRepository) FindByID(id uint) (*models.Alert, error) {
	if alert, ok := m.alerts[id]; ok {
		copied := *alert
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockAlertRepository) FindByClientID(clientID string, senderID, receiverID uint) (*models.Alert, error) {
	for _, alert := range m.alerts {
		if alert.ClientID == clientID && alert.SenderID == senderID && alert.ReceiverID == receiverID {
			copied := *alert
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockAlertRepository) FindByReceiver(userID uint, limit int) ([]models.Alert, error) {
	var result []models.Alert
	for _, alert := range m.alerts {
		if len(result) >= limit {
			break
		}
		if alert.ReceiverID == userID {
			result = append(result, *alert)
		}
	}
	return result, nil
}

func (m *MockAlertRepository) FindBySender(userID uint, limit int) ([]models.Alert, error) {
	var result []models.Alert
	for _, alert := range m.alerts {
		if len(result) >= limit {
			break
		}
		if alert.SenderID == userID {
			result = append(result, *alert)
		}
	}
	return result, nil
}

func (m *MockAlertRepository) MarkRead(id uint, at time.Time) (bool, error) {
	alert, ok := m.alerts[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if alert.ReadAt != nil {
		return false, nil
	}
	alert.ReadAt = &at
	return true, nil
}

func (m *MockAlertRepository) SetResponse(id uint, response models.AlertResponse, responseMessage *string, at time.Time) error {
	alert, ok := m.alerts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	alert.Response = &response
	alert.ResponseMessage = responseMessage
	alert.RespondedAt = &at
	if alert.ReadAt == nil {
		alert.ReadAt = &at
	}
	return nil
}

// MockPlateRepository is an in-memory PlateRepositoryInterface for testing
type MockPlateRepository struct {
	plates map[uint]*models.PlateRegistration
	nextID uint
}

func NewMockPlateRepository() *MockPlateRepository {
	return &MockPlateRepository{
		plates: make(map[uint]*models.PlateRegistration),
		nextID: 1,
	}
}

func (m *MockPlateRepository) Create(reg *models.PlateRegistration) error {
	for _, existing := range m.plates {
		if existing.OwnerUserID == reg.OwnerUserID && existing.PlateHash == reg.PlateHash {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	if reg.ID == 0 {
		reg.ID = m.nextID
		m.nextID++
	}
	copied := *reg
	m.plates[reg.ID] = &copied
	return nil
}

func (m *MockPlateRepository) FindByID(id uint) (*models.PlateRegistration, error) {
	if reg, ok := m.plates[id]; ok {
		copied := *reg
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockPlateRepository) FindByOwner(userID uint) ([]models.PlateRegistration, error) {
	var result []models.PlateRegistration
	for _, reg := range m.plates {
		if reg.OwnerUserID == userID {
			result = append(result, *reg)
		}
	}
	return result, nil
}

func (m *MockPlateRepository) DeleteOwned(id uint, ownerUserID uint) (bool, error) {
	if reg, ok := m.plates[id]; ok && reg.OwnerUserID == ownerUserID {
		delete(m.plates, id)
		return true, nil
	}
	return false, nil
}

func (m *MockPlateRepository) ResolveOwners(plateHash string) ([]uint, error) {
	seen := make(map[uint]struct{})
	var owners []uint
	for _, reg := range m.plates {
		if reg.PlateHash != plateHash {
			continue
		}
		if _, ok := seen[reg.OwnerUserID]; ok {
			continue
		}
		seen[reg.OwnerUserID] = struct{}{}
		owners = append(owners, reg.OwnerUserID)
	}
	return owners, nil
}

// MockEntitlementRepository is an in-memory EntitlementRepositoryInterface
type MockEntitlementRepository struct {
	states map[uint]*models.EntitlementState
	nextID uint
}

func NewMockEntitlementRepository() *MockEntitlementRepository {
	return &MockEntitlementRepository{
		states: make(map[uint]*models.EntitlementState),
		nextID: 1,
	}
}

func (m *MockEntitlementRepository) GetOrCreate(userID uint, windowStart time.Time) (*models.EntitlementState, error) {
	if state, ok := m.states[userID]; ok {
		copied := *state
		return &copied, nil
	}
	state := &models.EntitlementState{
		ID:               m.nextID,
		UserID:           userID,
		Tier:             models.TierFree,
		UsageWindowStart: windowStart,
	}
	m.nextID++
	m.states[userID] = state
	copied := *state
	return &copied, nil
}

func (m *MockEntitlementRepository) Get(userID uint) (*models.EntitlementState, error) {
	if state, ok := m.states[userID]; ok {
		copied := *state
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockEntitlementRepository) SetTier(userID uint, tier models.EntitlementTier) error {
	state, ok := m.states[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	state.Tier = tier
	return nil
}

func (m *MockEntitlementRepository) ResetWindowIfExpired(userID uint, expiredBefore time.Time, newStart time.Time) error {
	state, ok := m.states[userID]
	if !ok {
		return nil
	}
	// Conditional UPDATE semantics: only the observed window resets.
	if !state.UsageWindowStart.After(expiredBefore) {
		state.DailyAlertsUsed = 0
		state.UsageWindowStart = newStart
	}
	return nil
}

func (m *MockEntitlementRepository) ConsumeIfUnder(userID uint, quota int) (bool, error) {
	state, ok := m.states[userID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if state.DailyAlertsUsed >= quota {
		return false, nil
	}
	state.DailyAlertsUsed++
	return true, nil
}

// MockAckMarkerRepository is an in-memory AckMarkerRepositoryInterface
type MockAckMarkerRepository struct {
	markers map[string]*models.AckMarker
	nextID  uint
}

func NewMockAckMarkerRepository() *MockAckMarkerRepository {
	return &MockAckMarkerRepository{
		markers: make(map[string]*models.AckMarker),
		nextID:  1,
	}
}

func ackKey(userID, alertID uint) string {
	return fmt.Sprintf("%d/%d", userID, alertID)
}

func (m *MockAckMarkerRepository) Ensure(userID, alertID uint) error {
	key := ackKey(userID, alertID)
	if _, ok := m.markers[key]; ok {
		return nil
	}
	m.markers[key] = &models.AckMarker{
		ID:      m.nextID,
		UserID:  userID,
		AlertID: alertID,
	}
	m.nextID++
	return nil
}

func (m *MockAckMarkerRepository) MarkAcknowledged(userID, alertID uint, at time.Time) (bool, error) {
	marker, ok := m.markers[ackKey(userID, alertID)]
	if !ok {
		return false, nil
	}
	if marker.Acknowledged {
		return false, nil
	}
	marker.Acknowledged = true
	marker.AcknowledgedAt = &at
	return true, nil
}

func (m *MockAckMarkerRepository) FindByUser(userID uint) ([]models.AckMarker, error) {
	var result []models.AckMarker
	for _, marker := range m.markers {
		if marker.UserID == userID {
			result = append(result, *marker)
		}
	}
	return result, nil
}

// MockPendingAlertRepository is an in-memory queue for offline delivery
type MockPendingAlertRepository struct {
	pending map[uint]*models.PendingAlert
	nextID  uint
}

func NewMockPendingAlertRepository() *MockPendingAlertRepository {
	return &MockPendingAlertRepository{
		pending: make(map[uint]*models.PendingAlert),
		nextID:  1,
	}
}

func (m *MockPendingAlertRepository) Enqueue(userID, alertID uint, payload string, priority int) error {
	now := time.Now()
	m.pending[m.nextID] = &models.PendingAlert{
		ID:        m.nextID,
		UserID:    userID,
		AlertID:   alertID,
		Payload:   payload,
		Priority:  priority,
		NextRetry: &now,
	}
	m.nextID++
	return nil
}

func (m *MockPendingAlertRepository) GetPendingForUser(userID uint, limit int) ([]models.PendingAlert, error) {
	var result []models.PendingAlert
	for _, pa := range m.pending {
		if len(result) >= limit {
			break
		}
		if pa.UserID == userID {
			result = append(result, *pa)
		}
	}
	return result, nil
}

func (m *MockPendingAlertRepository) GetRetryable(limit int) ([]models.PendingAlert, error) {
	var result []models.PendingAlert
	for _, pa := range m.pending {
		if len(result) >= limit {
			break
		}
		if pa.NextRetry != nil && !pa.NextRetry.After(time.Now()) {
			result = append(result, *pa)
		}
	}
	return result, nil
}

func (m *MockPendingAlertRepository) MarkAttempted(id uint, attempts int, nextRetry *time.Time) error {
	if pa, ok := m.pending[id]; ok {
		pa.Attempts = attempts
		pa.NextRetry = nextRetry
	}
	return nil
}

func (m *MockPendingAlertRepository) Delete(id uint) error {
	delete(m.pending, id)
	return nil
}

func (m *MockPendingAlertRepository) DeleteBatch(ids []uint) error {
	for _, id := range ids {
		delete(m.pending, id)
	}
	return nil
}

func (m *MockPendingAlertRepository) CountPendingForUser(userID uint) (int64, error) {
	var count int64
	for _, pa := range m.pending {
		if pa.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MockPendingAlertRepository) CleanupOld(olderThan time.Duration) error {
	return nil
}

// mockPublisher records published snapshots and simulates a configurable
// number of live receiver-side feeds.
type mockPublisher struct {
	published        []models.Alert
	receiverSessions int
}

func (p *mockPublisher) Publish(alert models.Alert) int {
	p.published = append(p.published, alert)
	return p.receiverSessions
}

// mockGate is a QuotaGate with a fixed budget.
type mockGate struct {
	remaining int
	consumed  int
}

func (g *mockGate) TryConsume(userID uint) (*ConsumeResult, error) {
	if g.remaining <= 0 {
		return &ConsumeResult{Allowed: false, Remaining: 0}, nil
	}
	g.remaining--
	g.consumed++
	return &ConsumeResult{Allowed: true, Remaining: g.remaining}, nil
}
