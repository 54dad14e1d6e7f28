package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ssimba1203/gather-map-clean/internal/database"
	apperrors "github.com/ssimba1203/gather-map-clean/internal/errors"
)

const (
	gatheringKeyPrefix = "gathering:"
	lockKeyPrefix      = "lock:gathering:"

	lockTTL   = 10 * time.Second
	lockRetry = 50 * time.Millisecond
)

// GatheringStore keeps gatherings in Redis as session keys. Every save
// refreshes the TTL, so idle gatherings expire on their own.
type GatheringStore struct {
	redis *RedisService
	ttl   time.Duration
}

func NewGatheringStore(redis *RedisService, ttl time.Duration) *GatheringStore {
	return &GatheringStore{redis: redis, ttl: ttl}
}

func gatheringKey(id string) string {
	return gatheringKeyPrefix + id
}

func (s *GatheringStore) Get(ctx context.Context, id string) (*database.Gathering, error) {
	var g database.Gathering
	if err := s.redis.GetWithUnmarshal(ctx, gatheringKey(id), &g); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, database.ErrGatheringNotFound
		}
		return nil, apperrors.NewCacheError("get_gathering", err)
	}
	return &g, nil
}

func (s *GatheringStore) Save(ctx context.Context, g *database.Gathering) error {
	if err := s.redis.Set(ctx, gatheringKey(g.ID), g, s.ttl); err != nil {
		return apperrors.NewCacheError("save_gathering", err)
	}
	return nil
}

func (s *GatheringStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Delete(ctx, gatheringKey(id)); err != nil {
		return apperrors.NewCacheError("delete_gathering", err)
	}
	return nil
}

// Lock serializes updates to one gathering across every process sharing this Redis
func (s *GatheringStore) Lock(ctx context.Context, id string) (func(), error) {
	unlock, err := s.redis.Lock(ctx, lockKeyPrefix+id, lockTTL, lockRetry)
	if err != nil {
		return nil, apperrors.NewCacheError("lock_gathering", err)
	}
	return unlock, nil
}
