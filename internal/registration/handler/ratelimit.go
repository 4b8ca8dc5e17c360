package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Sweep cadence for the per-IP limiter pool. Devices re-register on the
// order of minutes, so an IP idle for sweepIdle has no bucket worth keeping.
const (
	sweepEvery = 5 * time.Minute
	sweepIdle  = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per caller IP and drops idle ones.
type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

func newLimiterPool(rps, burst int) *limiterPool {
	return &limiterPool{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// allow reports whether a request from ip fits its bucket.
func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	b, ok := p.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	p.mu.Unlock()

	return b.limiter.Allow()
}

// sweep drops buckets idle longer than sweepIdle.
func (p *limiterPool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ip, b := range p.buckets {
		if time.Since(b.lastSeen) > sweepIdle {
			delete(p.buckets, ip)
		}
	}
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

// RateLimiter returns a Gin middleware enforcing a per-IP token bucket of
// rps steady-state requests per second with the given burst. The idle-bucket
// sweeper stops when done is closed.
//
// Every endpoint here is a cheap GET, so one shared budget per IP covers the
// whole API; register polling is the dominant traffic and fits well under it.
func RateLimiter(rps, burst int, done <-chan struct{}) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst)

	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pool.sweep()
			case <-done:
				return
			}
		}
	}()

	return func(c *gin.Context) {
		if !pool.allow(c.ClientIP()) {
			regRateLimitedTotal.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
