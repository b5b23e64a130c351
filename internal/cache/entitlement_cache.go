package cache

import (
	"fmt"
	"time"

	"github.com/Deze-Tingz/yuh-blockin-backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// EntitlementSnapshotTTL keeps the cached view short-lived; the gate
// invalidates on every consume anyway, the TTL is the backstop.
const EntitlementSnapshotTTL = 2 * time.Minute

// EntitlementCache holds the client-facing entitlement snapshot so the
// GET endpoint and session refresh do not hit Postgres on every call.
type EntitlementCache struct {
	redis *RedisCache
}

func NewEntitlementCache(redis *RedisCache) *EntitlementCache {
	return &EntitlementCache{redis: redis}
}

func entitlementKey(userID uint) string {
	return fmt.Sprintf("entitlement:%d", userID)
}

func (ec *EntitlementCache) Get(userID uint) (*models.EntitlementSnapshot, bool) {
	if ec == nil || ec.redis == nil {
		return nil, false
	}
	data, err := ec.redis.Get(entitlementKey(userID))
	if err != nil || data == nil {
		return nil, false
	}

	var snap models.EntitlementSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

func (ec *EntitlementCache) Set(userID uint, snap *models.EntitlementSnapshot) error {
	if ec == nil || ec.redis == nil {
		return nil
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return err
	}
	return ec.redis.Set(entitlementKey(userID), data, EntitlementSnapshotTTL)
}

func (ec *EntitlementCache) Invalidate(userID uint) error {
	if ec == nil || ec.redis == nil {
		return nil
	}
	return ec.redis.Delete(entitlementKey(userID))
}
