package middleware

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/agora-api/pkg/config"
	appErrors "github.com/noah-isme/agora-api/pkg/errors"
	"github.com/noah-isme/agora-api/pkg/response"
)

// tokenBucketScript refills and drains the bucket atomically in Redis so
// concurrent requests against one key cannot over-spend tokens.
const tokenBucketScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
    tokens = capacity
    last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
    local elapsed = math.max(0, now_ms - last_refill)
    local intervals = math.floor(elapsed / interval_ms)
    if intervals > 0 then
        tokens = math.min(capacity, tokens + (intervals * refill_tokens))
        last_refill = last_refill + (intervals * interval_ms)
    end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    local until_next = interval_ms - (now_ms - last_refill)
    if until_next < 0 then until_next = 0 end
    retry_after_ms = until_next
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, retry_after_ms }
`

// RateLimit guards the auth endpoints with a Redis token bucket keyed by
// client IP and route. Redis failures fail open: losing throttling beats
// losing logins.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.Enabled || rdb == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	script := redis.NewScript(tokenBucketScript)

	return func(c *gin.Context) {
		key := strings.Join([]string{cfg.Prefix, "ip", c.ClientIP(), "route", c.Request.Method + " " + c.FullPath()}, ":")

		args := []interface{}{
			time.Now().UnixMilli(),
			cfg.Capacity,
			cfg.RefillTokens,
			cfg.RefillInterval.Milliseconds(),
			int64(cfg.TTL / time.Second),
		}

		vals, err := script.Run(c.Request.Context(), rdb, []string{key}, args...).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		arr, ok := vals.([]interface{})
		if !ok || len(arr) != 2 {
			logger.Warn("unexpected rate limiter result", zap.Any("result", vals))
			c.Next()
			return
		}

		allowed := fmt.Sprint(arr[0]) == "1"
		retryMs := asInt64(arr[1])

		c.Writer.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))

		if !allowed {
			secs := int(math.Ceil(float64(retryMs) / 1000.0))
			if secs < 0 {
				secs = 0
			}
			c.Writer.Header().Set("Retry-After", strconv.Itoa(secs))
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
