package stream

import (
	"sync"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
)

// Direction of a subscription relative to the subscribing user.
type Direction int

const (
	// Incoming delivers alerts where the user is the receiver.
	Incoming Direction = iota
	// Outgoing delivers alerts where the user is the sender, used to
	// observe responses to alerts the user sent.
	Outgoing
)

const defaultBuffer = 64

// Subscription is one live feed of alert snapshots. Every value on C is
// the current state of that alert id, not a delta; delivery is
// at-least-once and unordered across distinct ids. When the channel is
// closed the subscription has terminated and the owner must resubscribe
// (immediately, then with bounded backoff); the broker never retries.
type Subscription struct {
	UserID    uint
	Direction Direction

	C  <-chan models.Alert
	ch chan models.Alert

	mu     sync.Mutex
	closed bool
	broker *Broker
}

// deliver pushes a snapshot without blocking. A consumer that cannot
// keep up has its subscription terminated rather than stalling every
// other session.
func (s *Subscription) deliver(alert models.Alert) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	select {
	case s.ch <- alert:
		s.mu.Unlock()
		return true
	default:
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.broker.remove(s)
		return false
	}
}

// Cancel terminates the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.broker.remove(s)
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

// Broker routes alert snapshots to the live subscriptions of the two
// users on the row: the receiver's incoming feed and the sender's
// outgoing feed. It is the in-process realization of the alert store's
// change-notification contract.
type Broker struct {
	mu       sync.RWMutex
	incoming map[uint]map[*Subscription]struct{}
	outgoing map[uint]map[*Subscription]struct{}
	buffer   int
}

func NewBroker() *Broker {
	return &Broker{
		incoming: make(map[uint]map[*Subscription]struct{}),
		outgoing: make(map[uint]map[*Subscription]struct{}),
		buffer:   defaultBuffer,
	}
}

func (b *Broker) subscribe(userID uint, dir Direction) *Subscription {
	ch := make(chan models.Alert, b.buffer)
	sub := &Subscription{
		UserID:    userID,
		Direction: dir,
		C:         ch,
		ch:        ch,
		broker:    b,
	}

	b.mu.Lock()
	set := b.setFor(dir)
	if set[userID] == nil {
		set[userID] = make(map[*Subscription]struct{})
	}
	set[userID][sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

func (b *Broker) SubscribeIncoming(userID uint) *Subscription {
	return b.subscribe(userID, Incoming)
}

func (b *Broker) SubscribeOutgoing(userID uint) *Subscription {
	return b.subscribe(userID, Outgoing)
}

// Publish fans a snapshot out to every matching subscription and
// reports how many incoming (receiver-side) feeds accepted it, so the
// caller can queue offline delivery when nobody was listening.
func (b *Broker) Publish(alert models.Alert) int {
	b.mu.RLock()
	subs := make([]*Subscription, 0, 4)
	for sub := range b.incoming[alert.ReceiverID] {
		subs = append(subs, sub)
	}
	for sub := range b.outgoing[alert.SenderID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	receiverDelivered := 0
	for _, sub := range subs {
		if sub.deliver(alert) && sub.Direction == Incoming {
			receiverDelivered++
		}
	}
	return receiverDelivered
}

// SubscriberCount reports live subscriptions for a user and direction.
func (b *Broker) SubscriberCount(userID uint, dir Direction) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.setFor(dir)[userID])
}

func (b *Broker) setFor(dir Direction) map[uint]map[*Subscription]struct{} {
	if dir == Incoming {
		return b.incoming
	}
	return b.outgoing
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	set := b.setFor(sub.Direction)
	if subs, ok := set[sub.UserID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(set, sub.UserID)
		}
	}
	b.mu.Unlock()
}
