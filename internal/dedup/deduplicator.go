package dedup

import (
	"os"
	"sync"
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
)

// DefaultFreshnessWindow is the maximum age an unread alert may have
// and still trigger an attention-grabbing presentation. Older alerts
// redelivered after a reconnect or relaunch are almost always moot.
const DefaultFreshnessWindow = 5 * time.Minute

// FreshnessWindow reads ALERT_FRESHNESS_WINDOW (a Go duration string)
// with a sane default.
func FreshnessWindow() time.Duration {
	s := os.Getenv("ALERT_FRESHNESS_WINDOW")
	if s == "" {
		return DefaultFreshnessWindow
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return DefaultFreshnessWindow
	}
	return d
}

// Deduplicator is the session-scoped guard against duplicate or stale
// presentation. One instance belongs to exactly one connected session
// and dies with it; it is injected, never shared as a singleton.
type Deduplicator struct {
	mu     sync.Mutex
	seen   map[uint]struct{}
	window time.Duration
	now    func() time.Time
}

func New(window time.Duration) *Deduplicator {
	return &Deduplicator{
		seen:   make(map[uint]struct{}),
		window: window,
		now:    time.Now,
	}
}

// ShouldPresent decides whether a pushed alert snapshot is eligible for
// an attention-grabbing presentation: never seen in this session, not
// yet responded, not yet read, and younger than the freshness window.
// The id is recorded as seen regardless of the outcome, so an alert is
// evaluated at most once per session no matter how often the stream
// redelivers it.
func (d *Deduplicator) ShouldPresent(alert models.AlertPayload) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[alert.ID]; dup {
		return false
	}
	d.seen[alert.ID] = struct{}{}

	if alert.Response != nil || alert.ReadAt != nil {
		return false
	}
	return d.now().Sub(alert.CreatedAt) < d.window
}

// SeenCount reports how many distinct alert ids this session observed.
func (d *Deduplicator) SeenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
