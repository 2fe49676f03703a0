// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// originLimiter enforces a per-origin request budget on the force-new
// endpoint: bypassing idempotency is the one operation that can multiply a
// caller's LLM spend, so it alone gets a limiter tighter than ordinary
// submission.
type originLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newOriginLimiter(perHour float64, burst int) *originLimiter {
	return &originLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(perHour / 3600),
		burst:    burst,
	}
}

func (o *originLimiter) allow(origin string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	lim, ok := o.limiters[origin]
	if !ok {
		lim = rate.NewLimiter(o.r, o.burst)
		o.limiters[origin] = lim
	}
	return lim.Allow()
}

// middleware rejects requests over budget with 429 before they reach the
// handler. Origin is taken from the client's IP since force-new requests are
// not otherwise authenticated.
func (o *originLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !o.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Kind:    "rate_limited",
				Message: "force-new analysis is limited per origin; retry later",
			})
			return
		}
		c.Next()
	}
}
