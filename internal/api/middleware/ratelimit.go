package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────────────
// Token Bucket Rate Limiter
// ──────────────────────────────────────────────────────────────────────────────

const (
	sweepInterval = 5 * time.Minute
	idleTTL       = 10 * time.Minute
)

// bucket is an in-memory token bucket for one caller.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastSeen time.Time
}

// RateLimiter holds per-caller buckets. Callers are keyed by account when
// authenticated and by client IP otherwise.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64 // tokens per second
	burst     float64
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per caller per minute with a
// burst of max(5, perMinute/6).
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	burst := float64(perMinute) / 6
	if burst < 5 {
		burst = 5
	}
	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		rate:      float64(perMinute) / 60,
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow deducts one token from key's bucket and reports whether it had one.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	if now.Sub(rl.lastSweep) > sweepInterval {
		rl.sweepLocked(now)
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, lastSeen: now}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastSeen).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweepLocked drops idle buckets so the map does not grow without bound.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-idleTTL)
	for key, b := range rl.buckets {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// Middleware returns the gin handler. Callers over the limit receive 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if acct := GetAccount(c); acct != "" {
			key = "acct:" + string(acct)
		}
		if !rl.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, please slow down",
				"code":    "ERR_RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware is shorthand for NewRateLimiter(perMinute).Middleware().
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	return NewRateLimiter(perMinute).Middleware()
}
