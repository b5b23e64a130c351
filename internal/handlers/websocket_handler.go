package handlers

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/cache"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/handlers/ws"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/repository"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/service"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/stream"
)

const reconcileInterval = 60 * time.Second

type WebSocketHandler struct {
	alertService  *service.AlertService
	plateService  *service.PlateService
	gate          *service.EntitlementGate
	tracker       *service.AcknowledgmentTracker
	broker        *stream.Broker
	hub           *ws.Hub
	userRepo      repository.UserRepositoryInterface
	presenceCache *cache.PresenceCache
}

func NewWebSocketHandler(
	alertService *service.AlertService,
	plateService *service.PlateService,
	gate *service.EntitlementGate,
	tracker *service.AcknowledgmentTracker,
	broker *stream.Broker,
	pendingRepo repository.PendingAlertRepositoryInterface,
	userRepo repository.UserRepositoryInterface,
	presenceCache *cache.PresenceCache,
) *WebSocketHandler {
	return &WebSocketHandler{
		alertService:  alertService,
		plateService:  plateService,
		gate:          gate,
		tracker:       tracker,
		broker:        broker,
		hub:           ws.NewHub(pendingRepo),
		userRepo:      userRepo,
		presenceCache: presenceCache,
	}
}

// GetHub returns the hub instance (useful for sending from other handlers)
func (h *WebSocketHandler) GetHub() *ws.Hub {
	return h.hub
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID := c.Locals("userID").(uint)
	wsDebug := os.Getenv("WS_DEBUG") == "true"

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	client := h.hub.Register(userID, c, supportsGzip)

	// The session pumps the user's two stream feeds onto this socket;
	// the reconciler owns its connectivity transitions. They reference
	// each other, so wiring happens in two steps.
	session := ws.NewSession(client, h.broker, h.tracker)
	reconciler := service.NewConnectivityReconciler(userID, h.tracker, service.ReconcilerHooks{
		Resubscribe:        session.Resubscribe,
		RefreshEntitlement: h.gate.RefreshSnapshot,
		RefreshPlates:      h.plateService.RefreshSnapshot,
	})
	session.AttachReconciler(reconciler)

	// Entering Online subscribes the feeds and runs the first
	// reconciliation pass.
	if err := reconciler.SetOnline(); err != nil {
		log.Printf("Failed to bring user %d session online: %v", userID, err)
		h.hub.Unregister(client)
		return
	}
	reconciler.StartPeriodic(reconcileInterval)

	// Update user status to online
	go func() {
		if err := h.presenceCache.SetUserOnline(userID); err != nil {
			log.Printf("Failed to set user %d online in cache: %v", userID, err)
		}
		if err := h.userRepo.UpdateOnlineStatus(userID, true); err != nil {
			log.Printf("Failed to set user %d online in DB: %v", userID, err)
		}
	}()

	// Flush queued alerts after successful connection
	go func() {
		if err := h.hub.FlushPendingAlerts(client); err != nil {
			log.Printf("Failed to flush pending alerts for user %d: %v", userID, err)
		}
	}()

	defer func() {
		reconciler.SetOffline()
		reconciler.Stop()
		session.Close()
		h.hub.Unregister(client)

		// Update user status to offline
		go func() {
			if err := h.presenceCache.SetUserOffline(userID); err != nil {
				log.Printf("Failed to set user %d offline in cache: %v", userID, err)
			}
			if err := h.userRepo.UpdateOnlineStatus(userID, false); err != nil {
				log.Printf("Failed to set user %d offline in DB: %v", userID, err)
			}
		}()
	}()

	log.Printf("User %d connected via WebSocket", userID)

	ctx := &ws.MessageContext{
		UserID:     userID,
		Client:     client,
		Hub:        h.hub,
		Session:    session,
		Alerts:     h.alertService,
		Tracker:    h.tracker,
		Reconciler: reconciler,
	}

	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			log.Printf("Error reading message from user %d: %v", userID, err)
			break
		}

		if wsDebug {
			log.Printf("ws_recv user_id=%d frame_type=%d size=%d", userID, messageType, len(messageBytes))
		}

		// Decompress if binary message (gzip compressed)
		if messageType == websocket.BinaryMessage {
			decompressed, err := ws.DecompressMessage(messageBytes)
			if err != nil {
				log.Printf("Error decompressing message from user %d: %v", userID, err)
				ws.SendError(client, "decompression_failed", "Failed to decompress message", err.Error())
				continue
			}
			messageBytes = decompressed
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			log.Printf("Error deserializing message from user %d: %v", userID, err)
			ws.SendError(client, "invalid_message", "Invalid message format", err.Error())
			continue
		}

		if err := msg.Process(ctx); err != nil {
			log.Printf("Error processing message %s from user %d: %v", msg.GetType(), userID, err)
			ws.SendError(client, "processing_failed", "Failed to process message", err.Error())
		}
	}

	log.Printf("User %d disconnected from WebSocket", userID)
}
