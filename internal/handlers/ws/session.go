package ws

import (
	"log"
	"sync"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/service"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/stream"
)

// Session binds one client connection to the user's two stream feeds
// and pumps snapshots onto the socket. Incoming snapshots get their
// attention flag from the connection's deduplicator; outgoing ones run
// through the acknowledgment tracker, which fires the one-shot
// "answered" notification on the first responded snapshot.
type Session struct {
	client  *ClientConnection
	broker  *stream.Broker
	tracker *service.AcknowledgmentTracker

	mu         sync.Mutex
	inSub      *stream.Subscription
	outSub     *stream.Subscription
	closed     bool
	reconciler *service.ConnectivityReconciler

	wg sync.WaitGroup
}

func NewSession(client *ClientConnection, broker *stream.Broker, tracker *service.AcknowledgmentTracker) *Session {
	return &Session{
		client:  client,
		broker:  broker,
		tracker: tracker,
	}
}

// AttachReconciler wires the session to its connectivity state machine.
// Must be called before Resubscribe; the two reference each other, so
// construction happens in two steps.
func (s *Session) AttachReconciler(r *service.ConnectivityReconciler) {
	s.mu.Lock()
	s.reconciler = r
	s.mu.Unlock()
}

// Resubscribe replaces both feeds with fresh subscriptions and starts
// new pump goroutines. Serves as the reconciler's Resubscribe hook: the
// initial subscribe on connect and every recovery go through it.
func (s *Session) Resubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if s.inSub != nil {
		s.inSub.Cancel()
	}
	if s.outSub != nil {
		s.outSub.Cancel()
	}
	s.inSub = s.broker.SubscribeIncoming(s.client.UserID)
	s.outSub = s.broker.SubscribeOutgoing(s.client.UserID)

	s.wg.Add(2)
	go s.pumpIncoming(s.inSub)
	go s.pumpOutgoing(s.outSub)
	return nil
}

// Close cancels both feeds and waits for the pumps to drain.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	in, out := s.inSub, s.outSub
	s.mu.Unlock()

	if in != nil {
		in.Cancel()
	}
	if out != nil {
		out.Cancel()
	}
	s.wg.Wait()
}

func (s *Session) pumpIncoming(sub *stream.Subscription) {
	defer s.wg.Done()
	for alert := range sub.C {
		event := stream.NewAlertEvent(stream.EventIncoming, alert)
		event.Attention = s.client.Dedup.ShouldPresent(event.Alert)
		if err := s.client.WriteJSON(event); err != nil {
			log.Printf("incoming push failed for user %d: %v", s.client.UserID, err)
		}
	}
	s.feedEnded(sub)
}

func (s *Session) pumpOutgoing(sub *stream.Subscription) {
	defer s.wg.Done()
	for alert := range sub.C {
		event := stream.NewAlertEvent(stream.EventOutgoing, alert)
		if err := s.client.WriteJSON(event); err != nil {
			log.Printf("outgoing push failed for user %d: %v", s.client.UserID, err)
		}
		s.observeResponse(alert)
	}
	s.feedEnded(sub)
}

// observeResponse runs responded snapshots through the tracker; only
// the observation that flips the marker emits the answered event, so
// redelivered snapshots never re-notify.
func (s *Session) observeResponse(alert models.Alert) {
	flipped, err := s.tracker.Observe(s.client.UserID, alert)
	if err != nil {
		log.Printf("ack observe failed for alert %d: %v", alert.ID, err)
		return
	}
	if !flipped {
		return
	}
	answered := stream.NewAlertEvent(stream.EventAnswered, alert)
	if err := s.client.WriteJSON(answered); err != nil {
		log.Printf("answered push failed for user %d: %v", s.client.UserID, err)
	}
}

// feedEnded runs when a pump's channel closes. A close caused by
// Resubscribe or Close is expected; anything else means the broker
// terminated the feed (slow consumer), so the reconciler replays the
// loss-and-restoration sequence: resubscribe with backoff, then a
// reconciliation pass to repair whatever the gap swallowed.
func (s *Session) feedEnded(sub *stream.Subscription) {
	s.mu.Lock()
	replaced := s.closed || (sub != s.inSub && sub != s.outSub)
	reconciler := s.reconciler
	s.mu.Unlock()

	if replaced || reconciler == nil {
		return
	}

	log.Printf("stream feed terminated for user %d, recovering", s.client.UserID)
	reconciler.SetOffline()
	go func() {
		if err := reconciler.SetOnline(); err != nil {
			log.Printf("stream recovery failed for user %d: %v", s.client.UserID, err)
		}
	}()
}
