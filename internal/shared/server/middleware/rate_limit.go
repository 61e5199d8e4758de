package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"execal-client/internal/shared/server/respond"
)

// Limit allows Rate requests per second with bursts of up to Burst.
// A zero Limit never throttles.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) enabled() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Buckets holds one token bucket per principal and route.
type Buckets struct {
	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewBuckets returns empty buckets. A nil clock means time.Now.
func NewBuckets(now func() time.Time) *Buckets {
	if now == nil {
		now = time.Now
	}
	return &Buckets{m: make(map[string]*bucket), now: now}
}

// Take spends one token for key. When none is left it returns false and
// the wait until the next token.
func (b *Buckets) Take(key string, lim Limit) (bool, time.Duration) {
	if b == nil || !lim.enabled() {
		return true, 0
	}
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	bk, ok := b.m[key]
	if !ok {
		bk = &bucket{tokens: float64(lim.Burst), last: now}
		b.m[key] = bk
	}
	if elapsed := now.Sub(bk.last).Seconds(); elapsed > 0 {
		bk.tokens = math.Min(float64(lim.Burst), bk.tokens+elapsed*lim.Rate)
		bk.last = now
	}
	if bk.tokens >= 1 {
		bk.tokens--
		return true, 0
	}
	wait := (1 - bk.tokens) / lim.Rate
	return false, time.Duration(math.Ceil(wait*1000)) * time.Millisecond
}

// Throttle limits each principal (the authenticated email, else the client
// IP) on the route it is attached to. Rejected requests get 429 with
// Retry-After in whole seconds.
func Throttle(lim Limit, b *Buckets) gin.HandlerFunc {
	if b == nil {
		b = NewBuckets(nil)
	}
	return func(c *gin.Context) {
		principal := strings.TrimSpace(UserEmailFromContext(c))
		if principal == "" {
			principal = c.ClientIP()
		}
		ok, wait := b.Take(principal+" "+c.Request.Method+" "+c.FullPath(), lim)
		if ok {
			c.Next()
			return
		}
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		respond.Error(c, http.StatusTooManyRequests, fmt.Sprintf("Too many requests, retry in %ds", secs))
	}
}
