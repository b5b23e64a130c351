package service

import (
	"errors"
	"testing"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/validation"
)

func newAlertServiceForTest(policy ResponsePolicy) (*AlertService, *MockAlertRepository, *MockPlateRepository, *MockPendingAlertRepository, *mockPublisher, *mockGate) {
	alertRepo := NewMockAlertRepository()
	plateRepo := NewMockPlateRepository()
	ackRepo := NewMockAckMarkerRepository()
	pendingRepo := NewMockPendingAlertRepository()
	gate := &mockGate{remaining: 3}
	publisher := &mockPublisher{receiverSessions: 1}

	svc := NewAlertService(alertRepo, plateRepo, ackRepo, pendingRepo, gate, publisher, policy)
	return svc, alertRepo, plateRepo, pendingRepo, publisher, gate
}

func registerPlate(plateRepo *MockPlateRepository, ownerID uint, plate string) string {
	hash := validation.PlateFingerprint(plate)
	plateRepo.Create(&models.PlateRegistration{
		OwnerUserID: ownerID,
		PlateHash:   hash,
		Label:       "car",
	})
	return hash
}

func TestSendAlert(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(plateRepo *MockPlateRepository, gate *mockGate)
		input      SendAlertInput
		wantErr    error
		recipients int
	}{
		{
			name: "Send to single owner by raw plate",
			setup: func(plateRepo *MockPlateRepository, gate *mockGate) {
				registerPlate(plateRepo, 2, "ABC123")
			},
			input:      SendAlertInput{Plate: "abc 123", Message: "You're blocking me in"},
			recipients: 1,
		},
		{
			name: "Fan out to every registered owner",
			setup: func(plateRepo *MockPlateRepository, gate *mockGate) {
				registerPlate(plateRepo, 2, "XYZ999")
				registerPlate(plateRepo, 3, "XYZ999")
			},
			input:      SendAlertInput{Plate: "XYZ999"},
			recipients: 2,
		},
		{
			name:    "Malformed plate rejected",
			setup:   func(plateRepo *MockPlateRepository, gate *mockGate) {},
			input:   SendAlertInput{Plate: "!"},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "Malformed fingerprint rejected",
			setup:   func(plateRepo *MockPlateRepository, gate *mockGate) {},
			input:   SendAlertInput{PlateHash: "nothex"},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "Unknown plate is not found",
			setup: func(plateRepo *MockPlateRepository, gate *mockGate) {
				registerPlate(plateRepo, 2, "ABC123")
			},
			input:   SendAlertInput{Plate: "ZZZ888"},
			wantErr: apperr.ErrNotFound,
		},
		{
			name: "Exhausted quota fails fast",
			setup: func(plateRepo *MockPlateRepository, gate *mockGate) {
				registerPlate(plateRepo, 2, "ABC123")
				gate.remaining = 0
			},
			input:   SendAlertInput{Plate: "ABC123"},
			wantErr: apperr.ErrRateLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, alertRepo, plateRepo, _, _, gate := newAlertServiceForTest(LastWriteWins)
			tt.setup(plateRepo, gate)

			result, err := svc.SendAlert(1, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SendAlert error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SendAlert unexpected error: %v", err)
			}
			if result.RecipientCount != tt.recipients {
				t.Errorf("RecipientCount = %d, want %d", result.RecipientCount, tt.recipients)
			}
			if len(result.AlertIDs) != tt.recipients {
				t.Errorf("AlertIDs = %v, want %d rows", result.AlertIDs, tt.recipients)
			}
			for _, id := range result.AlertIDs {
				alert, err := alertRepo.FindByID(id)
				if err != nil {
					t.Fatalf("created alert %d not found: %v", id, err)
				}
				if alert.ClientID == "" {
					t.Errorf("alert %d has no client id", id)
				}
				if alert.SenderID != 1 {
					t.Errorf("alert %d sender = %d, want 1", id, alert.SenderID)
				}
			}
		})
	}
}

func TestSendAlertQuotaCheckedBeforeStorage(t *testing.T) {
	svc, alertRepo, plateRepo, _, publisher, gate := newAlertServiceForTest(LastWriteWins)
	registerPlate(plateRepo, 2, "ABC123")
	gate.remaining = 0

	if _, err := svc.SendAlert(1, SendAlertInput{Plate: "ABC123"}); !errors.Is(err, apperr.ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if len(alertRepo.alerts) != 0 {
		t.Errorf("out-of-quota send created %d rows", len(alertRepo.alerts))
	}
	if len(publisher.published) != 0 {
		t.Errorf("out-of-quota send published %d snapshots", len(publisher.published))
	}
}

func TestSendAlertPartialFailure(t *testing.T) {
	svc, alertRepo, plateRepo, _, _, _ := newAlertServiceForTest(LastWriteWins)
	registerPlate(plateRepo, 2, "XYZ999")
	registerPlate(plateRepo, 3, "XYZ999")
	alertRepo.failForReceiver[3] = errors.New("disk full")

	result, err := svc.SendAlert(1, SendAlertInput{Plate: "XYZ999"})

	var partial *apperr.PartialFailure
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailure, got %v", err)
	}
	if !errors.Is(err, apperr.ErrPersistence) {
		t.Errorf("PartialFailure should unwrap to ErrPersistence")
	}
	if result == nil || result.RecipientCount != 1 {
		t.Fatalf("expected partial result with 1 recipient, got %+v", result)
	}
	if len(partial.Failed) != 1 {
		t.Errorf("Failed = %v, want exactly one entry", partial.Failed)
	}
}

func TestSendAlertQueuesWhenReceiverOffline(t *testing.T) {
	svc, _, plateRepo, pendingRepo, publisher, _ := newAlertServiceForTest(LastWriteWins)
	registerPlate(plateRepo, 2, "ABC123")
	publisher.receiverSessions = 0

	result, err := svc.SendAlert(1, SendAlertInput{Plate: "ABC123"})
	if err != nil {
		t.Fatalf("SendAlert unexpected error: %v", err)
	}

	count, _ := pendingRepo.CountPendingForUser(2)
	if count != 1 {
		t.Errorf("pending queue count = %d, want 1", count)
	}
	// The entry is born retryable, so the retry worker picks it up even
	// if the receiver never reconnects to trigger a flush.
	retryable, _ := pendingRepo.GetRetryable(10)
	if len(retryable) != 1 {
		t.Errorf("retryable entries = %d, want 1", len(retryable))
	}
	// The durable row exists regardless of delivery.
	if len(result.AlertIDs) != 1 {
		t.Errorf("AlertIDs = %v, want one row", result.AlertIDs)
	}
}

func TestSendAlertRetrySameClientID(t *testing.T) {
	svc, alertRepo, plateRepo, _, _, _ := newAlertServiceForTest(LastWriteWins)
	registerPlate(plateRepo, 2, "XYZ999")
	registerPlate(plateRepo, 3, "XYZ999")

	input := SendAlertInput{Plate: "XYZ999", Message: "blocked in", ClientID: "f3b9c6e0-0000-4000-8000-000000000001"}
	first, err := svc.SendAlert(1, input)
	if err != nil {
		t.Fatalf("first SendAlert unexpected error: %v", err)
	}

	// A client that never saw the reply resends with the same client id.
	// The existing rows answer for it; no new rows appear.
	second, err := svc.SendAlert(1, input)
	if err != nil {
		t.Fatalf("retried SendAlert unexpected error: %v", err)
	}
	if second.RecipientCount != first.RecipientCount {
		t.Errorf("retry RecipientCount = %d, want %d", second.RecipientCount, first.RecipientCount)
	}
	if len(alertRepo.alerts) != len(first.AlertIDs) {
		t.Errorf("retry grew the store to %d rows, want %d", len(alertRepo.alerts), len(first.AlertIDs))
	}
	firstIDs := make(map[uint]struct{}, len(first.AlertIDs))
	for _, id := range first.AlertIDs {
		firstIDs[id] = struct{}{}
	}
	for _, id := range second.AlertIDs {
		if _, ok := firstIDs[id]; !ok {
			t.Errorf("retry returned unknown alert id %d", id)
		}
	}
}

func TestAlertMutationsScopedToReceiver(t *testing.T) {
	svc, alertRepo, plateRepo, _, _, _ := newAlertServiceForTest(LastWriteWins)
	registerPlate(plateRepo, 2, "ABC123")

	result, err := svc.SendAlert(1, SendAlertInput{Plate: "ABC123"})
	if err != nil {
		t.Fatalf("SendAlert unexpected error: %v", err)
	}
	alertID := result.AlertIDs[0]

	// Neither the sender nor an unrelated user may act on the
	// receiver's alert; both get NotFound rather than a hint that the
	// row exists.
	for _, caller := range []uint{1, 9} {
		if err := svc.SendResponse(caller, alertID, "wrong_car", "not my car"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("caller %d SendResponse error = %v, want ErrNotFound", caller, err)
		}
		if err := svc.MarkAlertRead(caller, alertID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("caller %d MarkAlertRead error = %v, want ErrNotFound", caller, err)
		}
	}

	alert, _ := alertRepo.FindByID(alertID)
	if alert.Response != nil || alert.ReadAt != nil {
		t.Fatalf("non-receiver mutated the alert: %+v", alert)
	}

	// The actual receiver still can.
	if err := svc.SendResponse(2, alertID, "moving_now", ""); err != nil {
		t.Fatalf("receiver SendResponse unexpected error: %v", err)
	}
}

func TestMarkAlertRead(t *testing.T) {
	svc, alertRepo, plateRepo, _, publisher, _ := newAlertServiceForTest(LastWriteWins)
	registerPlate(plateRepo, 2, "ABC123")

	result, err := svc.SendAlert(1, SendAlertInput{Plate: "ABC123"})
	if err != nil {
		t.Fatalf("SendAlert unexpected error: %v", err)
	}
	alertID := result.AlertIDs[0]
	publishedBefore := len(publisher.published)

	if err := svc.MarkAlertRead(2, alertID); err != nil {
		t.Fatalf("MarkAlertRead unexpected error: %v", err)
	}
	alert, _ := alertRepo.FindByID(alertID)
	if alert.ReadAt == nil {
		t.Fatal("read_at not set")
	}
	firstReadAt := *alert.ReadAt
	if len(publisher.published) != publishedBefore+1 {
		t.Errorf("read state change not pushed to streams")
	}

	// Second read is a no-op: the timestamp never moves and nothing is
	// re-pushed.
	if err := svc.MarkAlertRead(2, alertID); err != nil {
		t.Fatalf("repeat MarkAlertRead unexpected error: %v", err)
	}
	alert, _ = alertRepo.FindByID(alertID)
	if !alert.ReadAt.Equal(firstReadAt) {
		t.Errorf("read_at moved on repeat read: %v -> %v", firstReadAt, alert.ReadAt)
	}
	if len(publisher.published) != publishedBefore+1 {
		t.Errorf("idempotent read still pushed an update")
	}

	if err := svc.MarkAlertRead(2, 9999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing alert error = %v, want ErrNotFound", err)
	}
}

func TestSendResponse(t *testing.T) {
	tests := []struct {
		name     string
		policy   ResponsePolicy
		first    string
		second   string
		wantErr  error
		wantLast models.AlertResponse
	}{
		{
			name:     "Last write wins overwrites",
			policy:   LastWriteWins,
			first:    "5_minutes",
			second:   "moving_now",
			wantLast: models.ResponseMovingNow,
		},
		{
			name:    "First write wins conflicts",
			policy:  FirstWriteWins,
			first:   "5_minutes",
			second:  "moving_now",
			wantErr: apperr.ErrAlreadyResponded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, alertRepo, plateRepo, _, _, _ := newAlertServiceForTest(tt.policy)
			registerPlate(plateRepo, 2, "ABC123")
			result, err := svc.SendAlert(1, SendAlertInput{Plate: "ABC123"})
			if err != nil {
				t.Fatalf("SendAlert unexpected error: %v", err)
			}
			alertID := result.AlertIDs[0]

			if err := svc.SendResponse(2, alertID, tt.first, "coming"); err != nil {
				t.Fatalf("first SendResponse unexpected error: %v", err)
			}

			err = svc.SendResponse(2, alertID, tt.second, "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("second SendResponse error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("second SendResponse unexpected error: %v", err)
			}
			alert, _ := alertRepo.FindByID(alertID)
			if alert.Response == nil || *alert.Response != tt.wantLast {
				t.Errorf("response = %v, want %s", alert.Response, tt.wantLast)
			}
		})
	}
}

func TestSendResponseValidation(t *testing.T) {
	svc, alertRepo, plateRepo, _, _, _ := newAlertServiceForTest(LastWriteWins)
	registerPlate(plateRepo, 2, "ABC123")
	result, _ := svc.SendAlert(1, SendAlertInput{Plate: "ABC123"})
	alertID := result.AlertIDs[0]

	if err := svc.SendResponse(2, alertID, "shrug", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown response error = %v, want ErrValidation", err)
	}
	if err := svc.SendResponse(2, 9999, "moving_now", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing alert error = %v, want ErrNotFound", err)
	}

	// A response on an unread alert stamps read_at too: responded
	// implies read.
	if err := svc.SendResponse(2, alertID, "cant_move", ""); err != nil {
		t.Fatalf("SendResponse unexpected error: %v", err)
	}
	alert, _ := alertRepo.FindByID(alertID)
	if alert.RespondedAt == nil || alert.ReadAt == nil {
		t.Errorf("responded alert must carry both response_at and read_at, got %+v", alert)
	}
}
