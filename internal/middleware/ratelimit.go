package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/metrics"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
)

// RateLimiter allows a fixed number of requests per client within a fixed
// window. Bucket state lives in the injected store.
type RateLimiter struct {
	store   repository.BucketStore
	limit   int
	window  time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logging.LoggerV2
}

func NewRateLimiter(store repository.BucketStore, limit int, window time.Duration, m *metrics.Metrics, logger *logging.LoggerV2) *RateLimiter {
	return &RateLimiter{
		store:   store,
		limit:   limit,
		window:  window,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// WithClock replaces the time source.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ClientKey(c)

		bucket, err := rl.store.Hit(c.Request.Context(), key, rl.now(), rl.window)
		if err != nil {
			// A broken store must not take checkout down with it.
			rl.logger.Error("Rate limit store failed", logging.Fields{
				"client": key,
				"error":  err.Error(),
			})
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(rl.limit-bucket.Count, 0)))

		if bucket.Count > rl.limit {
			retryAfter := int(bucket.ResetAt.Sub(rl.now()).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			rl.metrics.RateLimitRejected()
			rl.logger.Warn("Payment rate limit exceeded", logging.Fields{
				"client": key,
				"count":  bucket.Count,
			})
			abortWithError(c, http.StatusTooManyRequests, errors.ErrRateLimited)
			return
		}

		c.Next()
	}
}

// abortWithError stops the chain and records err for the error renderer. The
// status is set without writing so the renderer can still add a body.
func abortWithError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.Status(status)
	c.Abort()
}

// ClientKey identifies the caller: first X-Forwarded-For entry, then
// X-Real-IP, then the peer address.
func ClientKey(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	return c.RemoteIP()
}
