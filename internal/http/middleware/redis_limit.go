// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adds an optional Redis-backed fixed-window limiter layered on top
// of the in-process token buckets. The local buckets defend a single replica;
// the shared counter makes the limit hold across replicas when REDIS_ADDR is
// configured. When Redis is unreachable the middleware fails open, logging the
// error, so a cache outage degrades protection instead of availability.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisLimiter enforces a fixed-window request ceiling in a shared store.
type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	window time.Duration
	keyFn  keyFunc
}

// NewRedisLimiter constructs a shared limiter. limit is the maximum number of
// requests per window for one key.
func NewRedisLimiter(rdb *redis.Client, prefix string, limit int64, window time.Duration, keyFn keyFunc) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window, keyFn: keyFn}
}

// Handler returns the enforcement middleware.
func (rl *RedisLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		window := time.Now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("rl:%s:%s:%d", rl.prefix, rl.keyFn(c), window)

		ctx := c.Request.Context()
		count, err := rl.rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("redis limiter unavailable, failing open")
			c.Next()
			return
		}
		if count == 1 {
			// First hit of the window owns the expiry.
			rl.rdb.Expire(ctx, key, rl.window)
		}
		if count > rl.limit {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "rate_limited",
				"message":    "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
