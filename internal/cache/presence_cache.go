package cache

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// Matches the hub's pong timeout so a crashed session ages out.
	OnlineUsersTTL = 90 * time.Second
)

// PresenceCache tracks which users have a live session. It only hints
// delivery; the pending queue is the source of truth for missed alerts.
type PresenceCache struct {
	redis *RedisCache
}

func NewPresenceCache(redis *RedisCache) *PresenceCache {
	return &PresenceCache{redis: redis}
}

func (pc *PresenceCache) SetUserOnline(userID uint) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	if err := pc.redis.SetAdd("online:users", userID); err != nil {
		return err
	}
	return pc.redis.Set(fmt.Sprintf("online:%d", userID), []byte("1"), OnlineUsersTTL)
}

func (pc *PresenceCache) SetUserOffline(userID uint) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	if err := pc.redis.SetRemove("online:users", userID); err != nil {
		return err
	}
	return pc.redis.Delete(fmt.Sprintf("online:%d", userID))
}

func (pc *PresenceCache) IsUserOnline(userID uint) bool {
	if pc == nil || pc.redis == nil {
		return false
	}
	return pc.redis.Exists(fmt.Sprintf("online:%d", userID))
}

func (pc *PresenceCache) RefreshUserOnline(userID uint) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	return pc.redis.Set(fmt.Sprintf("online:%d", userID), []byte("1"), OnlineUsersTTL)
}

func (pc *PresenceCache) GetOnlineUsers() ([]uint, error) {
	if pc == nil || pc.redis == nil {
		return nil, nil
	}
	members, err := pc.redis.SetMembers("online:users")
	if err != nil {
		return nil, err
	}

	userIDs := make([]uint, 0, len(members))
	for _, member := range members {
		if id, err := strconv.ParseUint(member, 10, 32); err == nil {
			userIDs = append(userIDs, uint(id))
		}
	}
	return userIDs, nil
}

func (pc *PresenceCache) GetOnlineCount() (int64, error) {
	if pc == nil || pc.redis == nil {
		return 0, nil
	}
	return pc.redis.SetCard("online:users")
}
