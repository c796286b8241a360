package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Clients idle for longer than this lose their bucket.
const limiterIdleTTL = 10 * time.Minute

// Probe endpoints are never throttled.
var rateLimitExempt = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters hands out one token bucket per client IP. Idle buckets are
// swept on access, at most once per ttl.
type clientLimiters struct {
	mu        sync.Mutex
	rps       int
	ttl       time.Duration
	now       func() time.Time
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newClientLimiters(rps int, ttl time.Duration, now func() time.Time) *clientLimiters {
	return &clientLimiters{
		rps:       rps,
		ttl:       ttl,
		now:       now,
		clients:   make(map[string]*clientLimiter),
		lastSweep: now(),
	}
}

func (l *clientLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.ttl {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) >= l.ttl {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.rps), l.rps)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (l *clientLimiters) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RateLimitMiddleware allows rps requests per second per client IP.
// Sensor gateways each get their own bucket so one chatty device cannot
// starve the rest.
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	return rateLimit(newClientLimiters(rps, limiterIdleTTL, time.Now))
}

func rateLimit(limiters *clientLimiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rateLimitExempt[c.FullPath()] {
			c.Next()
			return
		}

		r := limiters.get(c.ClientIP()).Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
