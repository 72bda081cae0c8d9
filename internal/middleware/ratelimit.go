package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jack/golang-shortlink-service/internal/config"
)

// RateLimiter implements a sliding window rate limiter using Redis
type RateLimiter struct {
	client   *redis.Client
	requests int
	duration time.Duration
	logger   *zap.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *redis.Client, cfg *config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client:   client,
		requests: cfg.Requests,
		duration: cfg.Duration,
		logger:   logger,
	}
}

// Middleware returns a Gin middleware for rate limiting. Redis failures
// fail open: the request proceeds, the error is logged.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		key := "ratelimit:" + ip

		ctx := c.Request.Context()

		now := time.Now().UnixNano()
		windowStart := now - rl.duration.Nanoseconds()

		pipe := rl.client.Pipeline()
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
		countCmd := pipe.ZCard(ctx, key)

		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			rl.logger.Warn("rate limit precheck failed",
				zap.String("ip", ip), zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.Next()
			return
		}

		count := countCmd.Val()

		if count >= int64(rl.requests) {
			c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rl.duration).Unix(), 10))
			c.Header("Retry-After", strconv.Itoa(int(rl.duration.Seconds())))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please try again later.",
			})
			return
		}

		pipe = rl.client.Pipeline()
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now),
			Member: now,
		})
		pipe.Expire(ctx, key, rl.duration)
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			rl.logger.Warn("rate limit record failed",
				zap.String("ip", ip), zap.String("path", c.Request.URL.Path), zap.Error(err))
		}

		remaining := rl.requests - int(count) - 1
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rl.duration).Unix(), 10))

		c.Next()
	}
}
