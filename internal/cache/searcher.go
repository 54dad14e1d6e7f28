package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ssimba1203/gather-map-clean/internal/services/geocoding"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

const searchKeyPrefix = "search:"

// CachedSearcher memoises successful non-empty keyword searches in Redis.
// Redis failures fall through to the wrapped searcher.
type CachedSearcher struct {
	next  geocoding.Searcher
	redis *RedisService
	ttl   time.Duration
}

func NewCachedSearcher(next geocoding.Searcher, redis *RedisService, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{next: next, redis: redis, ttl: ttl}
}

func searchKey(query string, opts geocoding.SearchOptions) string {
	raw := geocoding.NormalizeQuery(query)
	if opts.Location != nil {
		raw += fmt.Sprintf("|%.6f,%.6f|%d", opts.Location.Lat, opts.Location.Lng, opts.Radius)
	}
	raw += fmt.Sprintf("|%d|%s", opts.Size, opts.Sort)
	sum := sha1.Sum([]byte(raw))
	return searchKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedSearcher) KeywordSearch(ctx context.Context, query string, opts geocoding.SearchOptions) ([]geocoding.Place, error) {
	key := searchKey(query, opts)
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"key":       key,
		"operation": "cached_keyword_search",
		"service":   "cache",
	})

	var cached []geocoding.Place
	err := c.redis.GetWithUnmarshal(ctx, key, &cached)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, ErrCacheMiss):
		logger.WithError(err).Warn("Search cache unavailable, querying upstream")
	}

	places, err := c.next.KeywordSearch(ctx, query, opts)
	if err != nil || len(places) == 0 {
		return places, err
	}

	if err := c.redis.Set(ctx, key, places, c.ttl); err != nil {
		logger.WithError(err).Warn("Failed to cache search results")
	}
	return places, nil
}
