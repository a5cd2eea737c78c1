package middleware

// Token buckets for the manual sweep triggers. Every accepted trigger starts a
// full sweep against the listings service, so callers are throttled per IP.
// Buckets live in process memory and idle ones are evicted on lookup.

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc selects the identity used to key a rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByIP keys buckets by client IP.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
	gcEvery  uint64
}

// NewRateLimiter builds a limiter allowing rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByIP()
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		gcEvery:  1000,
	}
}

// limiterFor returns the bucket for key. Eviction runs before the lookup so a
// stale bucket is dropped even when it is the one requested.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.gcEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler returns the middleware. A rejected request gets 429 with the error
// envelope and a Retry-After of the whole seconds until its token refills.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		res := rl.limiterFor(rl.keyFn(c), now).ReserveN(now, 1)
		wait := res.DelayFrom(now)
		if res.OK() && wait == 0 {
			c.Next()
			return
		}
		// The request is refused, so give the token back.
		res.CancelAt(now)

		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait, res.OK())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{
			RequestID: GetRequestID(c),
			Code:      "too_many_requests",
			Message:   "rate limit exceeded",
		})
	}
}

// retryAfterSeconds rounds wait up to whole seconds, minimum 1. An impossible
// reservation (zero rate) also maps to 1.
func retryAfterSeconds(wait time.Duration, possible bool) int {
	if !possible || wait <= 0 {
		return 1
	}
	return int(math.Ceil(wait.Seconds()))
}
