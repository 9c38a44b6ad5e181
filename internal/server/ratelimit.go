package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"parley/internal/wire"
)

// multiLimiter keeps one token bucket per key and forgets idle keys.
type multiLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	entries map[string]*limBucket
	swept   time.Time
}

type limBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newMultiLimiter(limit rate.Limit, burst int, ttl time.Duration) *multiLimiter {
	return &multiLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		entries: make(map[string]*limBucket),
		swept:   time.Now(),
	}
}

func (m *multiLimiter) allow(key string) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.entries[key]
	if b == nil {
		b = &limBucket{lim: rate.NewLimiter(m.limit, m.burst), lastSeen: now}
		m.entries[key] = b
	}
	b.lastSeen = now
	if now.Sub(m.swept) > m.ttl {
		m.sweep(now)
	}
	return b.lim.Allow()
}

// sweep drops buckets idle for longer than ttl. Caller holds mu.
func (m *multiLimiter) sweep(now time.Time) {
	for k, v := range m.entries {
		if now.Sub(v.lastSeen) > m.ttl {
			delete(m.entries, k)
		}
	}
	m.swept = now
}

func (m *multiLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// middleware throttles per authenticated caller. Bundle fetches drain the
// peer's one-time pool, so they are the route that needs it.
func (m *multiLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.allow(caller(c).String()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, wire.Error{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
