package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ssimba1203/gather-map-clean/internal/errors"
)

// RateLimiter represents a simple token bucket rate limiter
type RateLimiter struct {
	tokens     int
	maxTokens  int
	lastRefill time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

// NewRateLimiter creates a bucket of maxTokens refilled one token per refillRate
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		lastRefill: time.Now(),
		refillRate: refillRate,
	}
}

// Allow takes a token if one is available
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill); elapsed >= rl.refillRate {
		refill := int(elapsed / rl.refillRate)
		rl.tokens = min(rl.maxTokens, rl.tokens+refill)
		rl.lastRefill = rl.lastRefill.Add(time.Duration(refill) * rl.refillRate)
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// KeyedRateLimiter keeps one bucket per key (client IP, chat id)
type KeyedRateLimiter struct {
	limiters   map[string]*RateLimiter
	mu         sync.RWMutex
	maxTokens  int
	refillRate time.Duration
}

// NewKeyedRateLimiter allows requests per window for every key
func NewKeyedRateLimiter(requests int, window time.Duration) *KeyedRateLimiter {
	if requests < 1 {
		requests = 1
	}
	return &KeyedRateLimiter{
		limiters:   make(map[string]*RateLimiter),
		maxTokens:  requests,
		refillRate: window / time.Duration(requests),
	}
}

// Allow reports whether key may proceed
func (m *KeyedRateLimiter) Allow(key string) bool {
	return m.getLimiter(key).Allow()
}

// Limit returns the bucket size
func (m *KeyedRateLimiter) Limit() int {
	return m.maxTokens
}

// Window is the time to refill a full bucket
func (m *KeyedRateLimiter) Window() time.Duration {
	return m.refillRate * time.Duration(m.maxTokens)
}

func (m *KeyedRateLimiter) getLimiter(key string) *RateLimiter {
	m.mu.RLock()
	limiter, exists := m.limiters[key]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if limiter, exists = m.limiters[key]; !exists {
			limiter = NewRateLimiter(m.maxTokens, m.refillRate)
			m.limiters[key] = limiter
		}
		m.mu.Unlock()
	}
	return limiter
}

// RateLimit rejects requests beyond the per-client-IP budget with 429
func RateLimit(limiter *KeyedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.Error(errors.NewRateLimitError(limiter.Limit(), limiter.Window().String()))
			c.Abort()
			return
		}
		c.Next()
	}
}
