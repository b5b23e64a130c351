package ws

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/dedup"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/repository"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/stream"
)

// ClientConnection wraps one WebSocket connection. A user may hold
// several at once (phone plus web); each carries its own delivery
// deduplicator, so attention decisions never leak across sessions.
type ClientConnection struct {
	Conn         *websocket.Conn
	UserID       uint
	LastPong     time.Time
	SupportsGzip bool
	PingTicker   *time.Ticker
	CloseChan    chan struct{}
	Dedup        *dedup.Deduplicator

	writeMu sync.Mutex
}

// WriteJSON serializes and writes under the connection's write lock.
// The session pumps, the hub workers and the read-loop replies all
// share the same socket, so every write funnels through here.
func (c *ClientConnection) WriteJSON(data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.writeRaw(jsonData)
}

func (c *ClientConnection) writeRaw(jsonData []byte) error {
	finalData := jsonData
	frameType := websocket.TextMessage

	// Compress if supported and beneficial (> 512 bytes)
	if c.SupportsGzip && len(jsonData) > 512 {
		if compressed, err := compressData(jsonData); err == nil && len(compressed) < len(jsonData) {
			finalData = compressed
			frameType = websocket.BinaryMessage
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(frameType, finalData)
}

// Hub manages all active WebSocket connections and the offline alert
// queue: flush-on-connect for freshly connected users and a retry
// worker with exponential backoff for everyone else.
type Hub struct {
	sessions       map[uint]map[*ClientConnection]struct{}
	sessionsMux    sync.RWMutex
	pendingRepo    repository.PendingAlertRepositoryInterface
	maxRetries     int
	baseRetryDelay time.Duration
	pingInterval   time.Duration
	pongTimeout    time.Duration
}

// NewHub creates a Hub and starts its background workers.
func NewHub(pendingRepo repository.PendingAlertRepositoryInterface) *Hub {
	hub := &Hub{
		sessions:       make(map[uint]map[*ClientConnection]struct{}),
		pendingRepo:    pendingRepo,
		maxRetries:     5,
		baseRetryDelay: 2 * time.Second,
		pingInterval:   30 * time.Second,
		pongTimeout:    90 * time.Second,
	}

	go hub.retryWorker()
	go hub.connectionHealthChecker()

	return hub
}

// Register adds a client connection with health monitoring and a fresh
// per-session deduplicator.
func (h *Hub) Register(userID uint, conn *websocket.Conn, supportsGzip bool) *ClientConnection {
	client := &ClientConnection{
		Conn:         conn,
		UserID:       userID,
		LastPong:     time.Now(),
		SupportsGzip: supportsGzip,
		PingTicker:   time.NewTicker(h.pingInterval),
		CloseChan:    make(chan struct{}),
		Dedup:        dedup.New(dedup.FreshnessWindow()),
	}

	conn.SetPongHandler(func(appData string) error {
		h.sessionsMux.Lock()
		client.LastPong = time.Now()
		h.sessionsMux.Unlock()
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(h.pongTimeout))

	h.sessionsMux.Lock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*ClientConnection]struct{})
	}
	h.sessions[userID][client] = struct{}{}
	total := h.count()
	h.sessionsMux.Unlock()

	go h.pingRoutine(client)

	log.Printf("User %d connected to hub (total: %d, gzip: %v)", userID, total, supportsGzip)
	return client
}

// Unregister removes one client connection; other sessions of the same
// user are untouched.
func (h *Hub) Unregister(client *ClientConnection) {
	h.sessionsMux.Lock()
	if set, exists := h.sessions[client.UserID]; exists {
		if _, registered := set[client]; registered {
			delete(set, client)
			if client.PingTicker != nil {
				client.PingTicker.Stop()
			}
			close(client.CloseChan)
		}
		if len(set) == 0 {
			delete(h.sessions, client.UserID)
		}
	}
	total := h.count()
	h.sessionsMux.Unlock()
	log.Printf("User %d session closed (total: %d)", client.UserID, total)
}

// IsOnline checks if a user has at least one live session.
func (h *Hub) IsOnline(userID uint) bool {
	h.sessionsMux.RLock()
	defer h.sessionsMux.RUnlock()
	return len(h.sessions[userID]) > 0
}

// SessionsFor snapshots a user's live connections.
func (h *Hub) SessionsFor(userID uint) []*ClientConnection {
	h.sessionsMux.RLock()
	defer h.sessionsMux.RUnlock()
	out := make([]*ClientConnection, 0, len(h.sessions[userID]))
	for client := range h.sessions[userID] {
		out = append(out, client)
	}
	return out
}

// GetOnlineUsers returns user IDs with at least one live session.
func (h *Hub) GetOnlineUsers() []uint {
	h.sessionsMux.RLock()
	defer h.sessionsMux.RUnlock()
	users := make([]uint, 0, len(h.sessions))
	for userID := range h.sessions {
		users = append(users, userID)
	}
	return users
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.sessionsMux.RLock()
	defer h.sessionsMux.RUnlock()
	return h.count()
}

func (h *Hub) count() int {
	n := 0
	for _, set := range h.sessions {
		n += len(set)
	}
	return n
}

// FlushPendingAlerts delivers queued alert envelopes to a freshly
// connected session in batches. Attention is decided here, per session,
// by the client's own deduplicator: a week-old queued alert arrives
// quietly instead of buzzing the phone.
func (h *Hub) FlushPendingAlerts(client *ClientConnection) error {
	if h.pendingRepo == nil {
		return nil
	}

	batchSize := 50
	pending, err := h.pendingRepo.GetPendingForUser(client.UserID, batchSize)
	if err != nil {
		log.Printf("Error fetching pending alerts for user %d: %v", client.UserID, err)
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	log.Printf("Flushing %d pending alerts to user %d", len(pending), client.UserID)

	events := make([]stream.AlertEvent, 0, len(pending))
	deliveredIDs := make([]uint, 0, len(pending))
	for _, pa := range pending {
		var event stream.AlertEvent
		if err := json.Unmarshal([]byte(pa.Payload), &event); err != nil {
			log.Printf("Error unmarshaling pending alert %d: %v", pa.ID, err)
			// Poisoned payload; drop it rather than retry forever.
			deliveredIDs = append(deliveredIDs, pa.ID)
			continue
		}
		event.Attention = client.Dedup.ShouldPresent(event.Alert)
		events = append(events, event)
		deliveredIDs = append(deliveredIDs, pa.ID)
	}

	batch := map[string]interface{}{
		"type":   "batch",
		"events": events,
		"count":  len(events),
	}
	if err := client.WriteJSON(batch); err != nil {
		log.Printf("Error sending batch to user %d: %v", client.UserID, err)
		// Connection failed, alerts stay in queue.
		return err
	}

	if err := h.pendingRepo.DeleteBatch(deliveredIDs); err != nil {
		log.Printf("Error deleting delivered alerts: %v", err)
	}

	if len(pending) == batchSize {
		// Small delay to avoid overwhelming the connection
		time.Sleep(100 * time.Millisecond)
		return h.FlushPendingAlerts(client)
	}
	return nil
}

// retryWorker re-attempts queued deliveries with exponential backoff.
func (h *Hub) retryWorker() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if h.pendingRepo == nil {
			continue
		}

		retryable, err := h.pendingRepo.GetRetryable(100)
		if err != nil {
			log.Printf("Error fetching retryable alerts: %v", err)
			continue
		}

		for _, pa := range retryable {
			clients := h.SessionsFor(pa.UserID)
			if len(clients) == 0 {
				h.scheduleRetry(pa.ID, pa.Attempts)
				continue
			}

			var event stream.AlertEvent
			if err := json.Unmarshal([]byte(pa.Payload), &event); err != nil {
				log.Printf("Error unmarshaling alert for retry %d: %v", pa.ID, err)
				h.pendingRepo.Delete(pa.ID)
				continue
			}

			delivered := false
			for _, client := range clients {
				perSession := event
				perSession.Attention = client.Dedup.ShouldPresent(event.Alert)
				if err := client.WriteJSON(perSession); err != nil {
					log.Printf("Retry delivery failed for user %d: %v", pa.UserID, err)
					continue
				}
				delivered = true
			}

			if delivered {
				h.pendingRepo.Delete(pa.ID)
			} else {
				h.scheduleRetry(pa.ID, pa.Attempts)
			}
		}
	}
}

func (h *Hub) scheduleRetry(pendingID uint, attempts int) {
	attempts++
	if attempts >= h.maxRetries {
		// Max retries reached, park it for a while instead of spinning.
		nextRetry := time.Now().Add(1 * time.Hour)
		h.pendingRepo.MarkAttempted(pendingID, attempts, &nextRetry)
		return
	}
	// Exponential backoff: 4s, 8s, 16s, 32s
	delay := h.baseRetryDelay * time.Duration(1<<uint(attempts))
	nextRetry := time.Now().Add(delay)
	h.pendingRepo.MarkAttempted(pendingID, attempts, &nextRetry)
}

// pingRoutine sends periodic pings to keep the connection alive.
func (h *Hub) pingRoutine(client *ClientConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Ping routine recovered from panic for user %d: %v", client.UserID, r)
		}
	}()

	for {
		select {
		case <-client.CloseChan:
			return
		case <-client.PingTicker.C:
			client.writeMu.Lock()
			err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			client.writeMu.Unlock()
			if err != nil {
				log.Printf("Ping failed for user %d: %v", client.UserID, err)
				h.Unregister(client)
				return
			}
		}
	}
}

// connectionHealthChecker removes sessions that stopped answering pings.
func (h *Hub) connectionHealthChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		h.sessionsMux.RLock()
		dead := make([]*ClientConnection, 0)
		now := time.Now()
		for _, set := range h.sessions {
			for client := range set {
				if now.Sub(client.LastPong) > h.pongTimeout {
					dead = append(dead, client)
				}
			}
		}
		h.sessionsMux.RUnlock()

		for _, client := range dead {
			log.Printf("Removing dead session for user %d (no pong received)", client.UserID)
			h.Unregister(client)
		}
	}
}

func compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := gzipWriter.Write(data); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
