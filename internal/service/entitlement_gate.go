package service

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/apperr"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/cache"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/Deze-Tingz/yuh-blockin-backend/internal/repository"
)

// QuotaResetPolicy selects how the daily usage window expires.
type QuotaResetPolicy string

const (
	// ResetRolling expires the window 24h after its start.
	ResetRolling QuotaResetPolicy = "rolling"
	// ResetMidnight expires the window at the next local midnight.
	ResetMidnight QuotaResetPolicy = "midnight"
)

// GateConfig centralizes the quota figures. The free limit is the one
// authoritative value for the whole system; nothing else hard-codes it.
type GateConfig struct {
	FreeDailyLimit    int
	PremiumDailyLimit int
	ResetPolicy       QuotaResetPolicy
}

func GateConfigFromEnv() GateConfig {
	cfg := GateConfig{
		FreeDailyLimit:    3,
		PremiumDailyLimit: 500,
		ResetPolicy:       ResetRolling,
	}
	if s := os.Getenv("FREE_DAILY_ALERT_LIMIT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.FreeDailyLimit = n
		}
	}
	if s := os.Getenv("PREMIUM_DAILY_ALERT_LIMIT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.PremiumDailyLimit = n
		}
	}
	if s := os.Getenv("QUOTA_RESET_POLICY"); QuotaResetPolicy(s) == ResetMidnight {
		cfg.ResetPolicy = ResetMidnight
	}
	return cfg
}

// ConsumeResult is the outcome of one atomic quota consumption.
type ConsumeResult struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// EntitlementGate answers "may this sender send one more alert today"
// with a single atomic check-and-increment. Premium and Lifetime tiers
// get a high cap rather than true infinity, to bound abuse.
type EntitlementGate struct {
	repo  repository.EntitlementRepositoryInterface
	cache *cache.EntitlementCache
	cfg   GateConfig
	now   func() time.Time
}

func NewEntitlementGate(repo repository.EntitlementRepositoryInterface, entCache *cache.EntitlementCache, cfg GateConfig) *EntitlementGate {
	return &EntitlementGate{
		repo:  repo,
		cache: entCache,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (g *EntitlementGate) quotaFor(tier models.EntitlementTier) int {
	if tier.IsPremium() {
		return g.cfg.PremiumDailyLimit
	}
	return g.cfg.FreeDailyLimit
}

func (g *EntitlementGate) windowExpiry(start time.Time) time.Time {
	if g.cfg.ResetPolicy == ResetMidnight {
		next := start.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location())
	}
	return start.Add(24 * time.Hour)
}

func (g *EntitlementGate) windowStart(now time.Time) time.Time {
	if g.cfg.ResetPolicy == ResetMidnight {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
	return now
}

// TryConsume performs the atomic check-and-consume for one send. The
// window reset and the increment are each a single conditional UPDATE,
// so two sessions of the same account racing here cannot over-grant.
func (g *EntitlementGate) TryConsume(userID uint) (*ConsumeResult, error) {
	now := g.now()

	state, err := g.repo.GetOrCreate(userID, g.windowStart(now))
	if err != nil {
		return nil, fmt.Errorf("%w: loading entitlement state: %v", apperr.ErrPersistence, err)
	}

	if !now.Before(g.windowExpiry(state.UsageWindowStart)) {
		// Condition on the window start we observed: if a concurrent
		// session reset first, this UPDATE matches nothing.
		if err := g.repo.ResetWindowIfExpired(userID, state.UsageWindowStart, g.windowStart(now)); err != nil {
			return nil, fmt.Errorf("%w: resetting usage window: %v", apperr.ErrPersistence, err)
		}
	}

	quota := g.quotaFor(state.Tier)
	allowed, err := g.repo.ConsumeIfUnder(userID, quota)
	if err != nil {
		return nil, fmt.Errorf("%w: consuming quota: %v", apperr.ErrPersistence, err)
	}

	// Snapshot no longer reflects the counter
	if cacheErr := g.cache.Invalidate(userID); cacheErr != nil {
		// Auxiliary bookkeeping only; never fail the send path for it.
		log.Printf("entitlement cache invalidate failed for user %d: %v", userID, cacheErr)
	}

	fresh, err := g.repo.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: reloading entitlement state: %v", apperr.ErrPersistence, err)
	}

	remaining := quota - fresh.DailyAlertsUsed
	if remaining < 0 {
		remaining = 0
	}
	return &ConsumeResult{Allowed: allowed, Remaining: remaining}, nil
}

// Snapshot returns the client-facing entitlement view, cached.
func (g *EntitlementGate) Snapshot(userID uint) (*models.EntitlementSnapshot, error) {
	if snap, ok := g.cache.Get(userID); ok {
		return snap, nil
	}

	state, err := g.repo.GetOrCreate(userID, g.windowStart(g.now()))
	if err != nil {
		return nil, fmt.Errorf("%w: loading entitlement state: %v", apperr.ErrPersistence, err)
	}

	quota := g.quotaFor(state.Tier)
	remaining := quota - state.DailyAlertsUsed
	if remaining < 0 {
		remaining = 0
	}
	snap := &models.EntitlementSnapshot{
		UserID:    userID,
		Tier:      state.Tier,
		Used:      state.DailyAlertsUsed,
		Quota:     quota,
		Remaining: remaining,
		ResetsAt:  g.windowExpiry(state.UsageWindowStart),
	}

	if err := g.cache.Set(userID, snap); err != nil {
		log.Printf("entitlement cache set failed for user %d: %v", userID, err)
	}
	return snap, nil
}

// RefreshSnapshot drops the cached view and rebuilds it, used when a
// session reconnects and its local validation state may be stale.
func (g *EntitlementGate) RefreshSnapshot(userID uint) error {
	if err := g.cache.Invalidate(userID); err != nil {
		log.Printf("entitlement cache invalidate failed for user %d: %v", userID, err)
	}
	_, err := g.Snapshot(userID)
	return err
}

// IsPremium is part of the gate's backing contract.
func (g *EntitlementGate) IsPremium(userID uint) (bool, error) {
	state, err := g.repo.GetOrCreate(userID, g.windowStart(g.now()))
	if err != nil {
		return false, fmt.Errorf("%w: loading entitlement state: %v", apperr.ErrPersistence, err)
	}
	return state.Tier.IsPremium(), nil
}

// DailyQuota is part of the gate's backing contract.
func (g *EntitlementGate) DailyQuota(userID uint) (int, error) {
	state, err := g.repo.GetOrCreate(userID, g.windowStart(g.now()))
	if err != nil {
		return 0, fmt.Errorf("%w: loading entitlement state: %v", apperr.ErrPersistence, err)
	}
	return g.quotaFor(state.Tier), nil
}

// SetTier records a tier change coming from the subscription side.
func (g *EntitlementGate) SetTier(userID uint, tier models.EntitlementTier) error {
	if _, err := g.repo.GetOrCreate(userID, g.windowStart(g.now())); err != nil {
		return fmt.Errorf("%w: loading entitlement state: %v", apperr.ErrPersistence, err)
	}
	if err := g.repo.SetTier(userID, tier); err != nil {
		return fmt.Errorf("%w: updating tier: %v", apperr.ErrPersistence, err)
	}
	return g.cache.Invalidate(userID)
}
