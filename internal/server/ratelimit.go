package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitorIdleEviction is how long an idle client's limiter is kept before a
// later request sweeps it away.
const visitorIdleEviction = 15 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit throttles requests per client IP with a token bucket of the given
// per-minute refill rate and burst. Exceeding it returns 429 with message.
func RateLimit(perMinute float64, burst int, message string) gin.HandlerFunc {
	var mu sync.Mutex
	visitors := make(map[string]*visitor)

	perSecond := perMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	obtain := func(id string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		v, ok := visitors[id]
		if !ok {
			for key, stale := range visitors {
				if now.Sub(stale.lastSeen) > visitorIdleEviction {
					delete(visitors, key)
				}
			}
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
			visitors[id] = v
		}
		v.lastSeen = now
		return v.limiter
	}

	return func(c *gin.Context) {
		if !obtain(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message})
			return
		}
		c.Next()
	}
}
