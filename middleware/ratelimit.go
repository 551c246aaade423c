package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

type clientWindow struct {
	count       int
	windowStart time.Time
}

// RateLimiter caps requests per client IP inside a fixed window. Appraisals
// are expensive upstream calls, so this sits in front of the whole API group.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientWindow
	limit    int
	window   time.Duration
	lastScan time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
	}
}

// Middleware enforces the limit and answers 429 when it is exceeded.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.allow(ip, time.Now()) {
			log.Warnf("rate limit exceeded for %s", ip)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please slow down and retry shortly",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Drop stale windows occasionally so the map stays bounded.
	if now.Sub(rl.lastScan) > rl.window {
		for k, w := range rl.clients {
			if now.Sub(w.windowStart) > rl.window {
				delete(rl.clients, k)
			}
		}
		rl.lastScan = now
	}

	w, ok := rl.clients[ip]
	if !ok || now.Sub(w.windowStart) > rl.window {
		rl.clients[ip] = &clientWindow{count: 1, windowStart: now}
		return true
	}
	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}
