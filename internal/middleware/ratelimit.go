package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"crmflow/internal/config"
	"crmflow/internal/metrics"

	"github.com/gin-gonic/gin"
)

// tokenBucket is a small, mutex-protected token bucket.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	ratePerSec float64
	burst      float64
}

func newBucket(rpm, burst int) *tokenBucket {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm
	}
	return &tokenBucket{
		tokens:     float64(burst),
		lastRefill: time.Now(),
		ratePerSec: float64(rpm) / 60.0,
		burst:      float64(burst),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.ratePerSec
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.lastRefill = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RateLimitMiddleware applies a per-key token bucket controlled by
// cfg.Security.RateLimiting. The key is KeyHeader when present, else the
// client IP. Whitelisted keys bypass the limiter.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled || rl.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	whitelist := make(map[string]struct{}, len(rl.Whitelist))
	for _, w := range trimAll(rl.Whitelist) {
		whitelist[w] = struct{}{}
	}
	var (
		mu      sync.Mutex
		buckets = make(map[string]*tokenBucket)
	)
	getBucket := func(key string) *tokenBucket {
		mu.Lock()
		defer mu.Unlock()
		if b, ok := buckets[key]; ok {
			return b
		}
		b := newBucket(rl.RequestsPerMinute, rl.Burst)
		buckets[key] = b
		return b
	}
	return func(c *gin.Context) {
		key := rateLimitKey(c, rl.KeyHeader)
		if _, ok := whitelist[key]; ok {
			c.Next()
			return
		}
		if !getBucket(key).allow() {
			metrics.IncRateLimitDrop("")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context, header string) string {
	if header != "" {
		if v := c.GetHeader(header); v != "" {
			// X-Forwarded-For 取第一个 IP
			if strings.EqualFold(header, "X-Forwarded-For") {
				v = strings.TrimSpace(strings.Split(v, ",")[0])
			}
			return v
		}
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return ip
}
