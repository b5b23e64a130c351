package service

import (
	"log"
	"sync"
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
)

const (
	resubscribeMaxAttempts = 5
	resubscribeBaseDelay   = 500 * time.Millisecond
)

// ReconcilerHooks are the session-owned actions the reconciler drives
// on a connectivity transition. Resubscribe must replace both stream
// subscriptions; the refresh hooks rebuild the snapshots used for local
// validation.
type ReconcilerHooks struct {
	Resubscribe        func() error
	RefreshEntitlement func(userID uint) error
	RefreshPlates      func(userID uint) error
}

// ConnectivityReconciler is a per-session state machine:
// Online -> (loss) -> Offline -> (restoration) -> Online. While Offline
// it fails sends fast instead of letting them hang; on every entry to
// Online it resubscribes the streams and runs one idempotent
// reconciliation pass. It only reacts to transitions; detecting them
// is the transport's job.
type ConnectivityReconciler struct {
	userID  uint
	tracker *AcknowledgmentTracker
	hooks   ReconcilerHooks

	mu     sync.Mutex
	online bool

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewConnectivityReconciler starts in the Offline state; the session
// calls SetOnline once the transport is up, which doubles as the
// initial subscribe-and-reconcile.
func NewConnectivityReconciler(userID uint, tracker *AcknowledgmentTracker, hooks ReconcilerHooks) *ConnectivityReconciler {
	return &ConnectivityReconciler{
		userID:   userID,
		tracker:  tracker,
		hooks:    hooks,
		stopChan: make(chan struct{}),
	}
}

func (r *ConnectivityReconciler) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Guard fails fast while Offline so a send never hangs on a dead
// transport.
func (r *ConnectivityReconciler) Guard() error {
	if !r.Online() {
		return apperr.ErrNetwork
	}
	return nil
}

// SetOffline marks the loss. Idempotent.
func (r *ConnectivityReconciler) SetOffline() {
	r.mu.Lock()
	wasOnline := r.online
	r.online = false
	r.mu.Unlock()
	if wasOnline {
		log.Printf("user %d session offline", r.userID)
	}
}

// SetOnline performs the full restoration sequence: resubscribe both
// stream feeds (immediate attempt, then bounded backoff), re-run
// acknowledgment reconciliation, and refresh the entitlement and plate
// snapshots. Calling it while already Online is a no-op.
func (r *ConnectivityReconciler) SetOnline() error {
	r.mu.Lock()
	if r.online {
		r.mu.Unlock()
		return nil
	}
	r.online = true
	r.mu.Unlock()

	if r.hooks.Resubscribe != nil {
		if err := r.resubscribeWithBackoff(); err != nil {
			r.SetOffline()
			return err
		}
	}

	if acknowledged, err := r.tracker.Reconcile(r.userID); err != nil {
		log.Printf("user %d reconcile on reconnect failed: %v", r.userID, err)
	} else if acknowledged > 0 {
		log.Printf("user %d reconcile repaired %d missed acknowledgments", r.userID, acknowledged)
	}

	if r.hooks.RefreshEntitlement != nil {
		if err := r.hooks.RefreshEntitlement(r.userID); err != nil {
			log.Printf("user %d entitlement refresh failed: %v", r.userID, err)
		}
	}
	if r.hooks.RefreshPlates != nil {
		if err := r.hooks.RefreshPlates(r.userID); err != nil {
			log.Printf("user %d plate refresh failed: %v", r.userID, err)
		}
	}
	return nil
}

func (r *ConnectivityReconciler) resubscribeWithBackoff() error {
	var err error
	for attempt := 0; attempt < resubscribeMaxAttempts; attempt++ {
		if attempt > 0 {
			// 500ms, 1s, 2s, 4s
			time.Sleep(resubscribeBaseDelay * time.Duration(1<<uint(attempt-1)))
		}
		if err = r.hooks.Resubscribe(); err == nil {
			return nil
		}
	}
	return err
}

// StartPeriodic runs reconciliation on a timer while Online, so that
// stream gaps shorter than a disconnect are also repaired. Stop cancels
// it; the ticker never outlives the owning session.
func (r *ConnectivityReconciler) StartPeriodic(interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopChan:
				return
			case <-ticker.C:
				if !r.Online() {
					continue
				}
				if _, err := r.tracker.Reconcile(r.userID); err != nil {
					log.Printf("user %d periodic reconcile failed: %v", r.userID, err)
				}
			}
		}
	}()
}

// Stop cancels the periodic loop and waits for it to exit.
func (r *ConnectivityReconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}
