// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file assembles the named rate tiers from configuration. Each tier is a
// local token bucket, optionally backed by a shared Redis fixed-window counter
// so the same ceiling holds across replicas.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/config"
)

// Limiters holds the middleware chain for every named rate tier.
type Limiters struct {
	Auth    []gin.HandlerFunc // login/signup, keyed by IP
	API     []gin.HandlerFunc // general authenticated API
	Chat    []gin.HandlerFunc // message send/edit/regenerate
	Upload  []gin.HandlerFunc // avatar upload
	Summary []gin.HandlerFunc // AI summary regeneration
	Strict  []gin.HandlerFunc // destructive operations
}

// NewLimiters builds the tier chains. rdb may be nil, in which case only the
// process-local buckets apply.
func NewLimiters(cfg config.RateConfig, rdb *redis.Client) *Limiters {
	byIP := func(c *gin.Context) string { return "ip:" + c.ClientIP() }
	byUser := KeyByUserOrIP()

	tier := func(name string, t config.RateTier, keyFn keyFunc) []gin.HandlerFunc {
		chain := []gin.HandlerFunc{NewRateLimiter(t.RPS, t.Burst, keyFn).Handler()}
		if rdb != nil {
			// Shared window sized to one minute of the configured rate.
			perMinute := int64(t.RPS * 60)
			if perMinute < int64(t.Burst) {
				perMinute = int64(t.Burst)
			}
			chain = append(chain, NewRedisLimiter(rdb, name, perMinute, time.Minute, keyFn).Handler())
		}
		return chain
	}

	return &Limiters{
		Auth:    tier("auth", cfg.Auth, byIP),
		API:     tier("api", cfg.API, byUser),
		Chat:    tier("chat", cfg.Chat, byUser),
		Upload:  tier("upload", cfg.Upload, byUser),
		Summary: tier("summary", cfg.Summary, byUser),
		Strict:  tier("strict", cfg.Strict, byUser),
	}
}
