package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/quocanhngo/tripzi/internal/model"
)

const idleLimiterTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// Allow takes a token from key's bucket
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastSweep) > idleLimiterTTL {
		for k, v := range r.visitors {
			if now.Sub(v.lastSeen) > idleLimiterTTL {
				delete(r.visitors, k)
			}
		}
		r.lastSweep = now
	}

	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// Middleware limits each authenticated user, or each client IP before
// authentication
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(KeyUserID)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !r.Allow(key) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, model.ErrorResponse{
				Error: "Too many requests",
				Code:  "TOO_MANY_REQUESTS",
			})
			return
		}
		c.Next()
	}
}
