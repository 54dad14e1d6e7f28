package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
)

// ErrCacheMiss is returned when a key does not exist
var ErrCacheMiss = errors.New("cache miss")

// DefaultTTL applies when Set is called with a zero ttl
const DefaultTTL = time.Hour

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisClientInterface defines the Redis client interface for testing
type RedisClientInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Info(ctx context.Context, section ...string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Close() error
}

// RedisService wraps a Redis client with JSON values and structured logging
type RedisService struct {
	client RedisClientInterface
}

// NewRedisService connects to Redis with the OpenTelemetry tracing hook installed
func NewRedisService(ctx context.Context, config RedisConfig) (*RedisService, error) {
	ctx = telemetry.EnsureCorrelationID(ctx)
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"host":      config.Host,
		"port":      config.Port,
		"db":        config.DB,
		"pool_size": config.PoolSize,
		"operation": "redis_connection",
		"service":   "cache",
	})

	logger.Info("Establishing Redis connection")

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr(),
		Password:   config.Password,
		DB:         config.DB,
		PoolSize:   config.PoolSize,
		MaxRetries: 3,
	})
	telemetry.InstrumentRedisClient(client)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		logger.WithError(err).Error("Failed to connect to Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connected successfully")
	return &RedisService{client: client}, nil
}

// NewRedisServiceWithClient wraps an existing client
func NewRedisServiceWithClient(client RedisClientInterface) *RedisService {
	return &RedisService{client: client}
}

// Set stores value as JSON with ttl
func (r *RedisService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation":   "redis_set",
		"key":         key,
		"ttl_seconds": ttl.Seconds(),
		"service":     "cache",
	})

	data, err := json.Marshal(value)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal value for cache")
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if ttl == 0 {
		ttl = DefaultTTL
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.WithError(err).Error("Failed to set cache value")
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	logger.Debug("Cache value set successfully")
	return nil
}

// GetWithUnmarshal loads key into dest; a missing key yields ErrCacheMiss
func (r *RedisService) GetWithUnmarshal(ctx context.Context, key string, dest interface{}) error {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation": "redis_get_unmarshal",
		"key":       key,
		"service":   "cache",
	})

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logger.Debug("Cache miss - key not found")
			return ErrCacheMiss
		}
		logger.WithError(err).Error("Failed to get cache value")
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		logger.WithError(err).Error("Failed to unmarshal cache value")
		return fmt.Errorf("failed to unmarshal key %s: %w", key, err)
	}
	logger.Debug("Cache hit - value retrieved successfully")
	return nil
}

// Delete removes key
func (r *RedisService) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"operation": "redis_delete",
			"key":       key,
			"service":   "cache",
		}).WithError(err).Error("Failed to delete cache key")
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Expire sets the TTL for key
func (r *RedisService) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// TTL returns the remaining time to live of key
func (r *RedisService) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

// releaseScript deletes the lock only while it still holds our token
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// Lock acquires key with SETNX, polling every retry until ctx is done. The
// lock expires after ttl if the holder never releases it.
func (r *RedisService) Lock(ctx context.Context, key string, ttl, retry time.Duration) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { r.unlock(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
		case <-time.After(retry):
		}
	}
}

func (r *RedisService) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
			"operation": "redis_unlock",
			"key":       key,
			"service":   "cache",
		}).WithError(err).Warn("Failed to release lock")
	}
}

// HealthCheck pings Redis
func (r *RedisService) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetStats returns keyspace hit/miss counters and connected clients
func (r *RedisService) GetStats(ctx context.Context) map[string]interface{} {
	info, err := r.client.Info(ctx, "stats").Result()
	if err != nil {
		return map[string]interface{}{
			"error": err.Error(),
		}
	}

	stats := map[string]interface{}{
		"hits":        parseInfoInt(info, "keyspace_hits"),
		"misses":      parseInfoInt(info, "keyspace_misses"),
		"connections": int64(0),
		"hit_rate":    0.0,
	}

	if clientInfo, err := r.client.Info(ctx, "clients").Result(); err == nil {
		stats["connections"] = parseInfoInt(clientInfo, "connected_clients")
	}

	hits, misses := stats["hits"].(int64), stats["misses"].(int64)
	if total := hits + misses; total > 0 {
		stats["hit_rate"] = float64(hits) / float64(total)
	}
	return stats
}

func parseInfoInt(info, field string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if ok && name == field {
			n, _ := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			return n
		}
	}
	return 0
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	return r.client.Close()
}
