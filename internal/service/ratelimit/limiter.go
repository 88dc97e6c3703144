package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "ImpactRank/pkg/http"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a keyed token bucket.
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket), now: time.Now} }

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Prune drops buckets untouched for longer than idle. A dropped bucket
// comes back full, which is what it would have refilled to anyway.
func (l *Limiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.m {
		if b.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// Middleware allows `requests` per `window` for each client IP and route.
// requests <= 0 disables limiting.
func Middleware(l *Limiter, requests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if requests <= 0 || window <= 0 {
			return next
		}
		capacity := float64(requests)
		refill := capacity / window.Seconds()
		var calls atomic.Uint64
		return func(c echo.Context) error {
			key := c.RealIP() + " " + c.Path()
			if !l.Allow(key, capacity, refill) {
				c.Response().Header().Set("Retry-After", retryAfter(refill))
				return xhttp.AppErrorResponse(c,
					xhttp.NewAppError(http.StatusTooManyRequests, "ERR_RATE_LIMITED", "rate limit exceeded").
						WithParam("requests", requests).
						WithParam("window", window.String()))
			}
			if calls.Add(1)%1024 == 0 {
				l.Prune(2 * window)
			}
			return next(c)
		}
	}
}

func retryAfter(refillPerSec float64) string {
	secs := int(math.Ceil(1 / refillPerSec))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
