package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/fitroom/fitroom-client/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// A misbehaving client retrying a failed push in a tight loop is the
// abuse case here, so limits are per client IP. Buckets idle longer
// than this are swept to keep the map from growing with every IP that
// ever connected.
const bucketIdleTTL = 10 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimit caps request rate per client IP using the configured
// refill rate and burst. Over-limit requests get 429; the sync engine
// treats that as a transient error and retries on its own schedule.
func RateLimit(sec config.SecurityConfig) gin.HandlerFunc {
	var (
		mu        sync.Mutex
		buckets   = make(map[string]*bucket)
		lastSweep = time.Now()
	)

	take := func(ip string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.Sub(lastSweep) > bucketIdleTTL {
			for k, b := range buckets {
				if now.Sub(b.lastSeen) > bucketIdleTTL {
					delete(buckets, k)
				}
			}
			lastSweep = now
		}

		b, ok := buckets[ip]
		if !ok {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst)}
			buckets[ip] = b
		}
		b.lastSeen = now
		return b.lim.Allow()
	}

	return func(c *gin.Context) {
		if !take(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
