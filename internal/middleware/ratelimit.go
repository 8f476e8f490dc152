package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
)

// limiterScript refills and takes one token atomically.  It returns
// {allowed, remaining, retry_after_ms}.
var limiterScript = redis.NewScript(`
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

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

type tokenBucket struct {
	cfg config.RateLimitConfig
	rdb redis.Scripter
	log *zap.Logger
	now func() time.Time
}

// NewTokenBucket limits requests per key with a Redis token bucket.  It is
// a pass-through when disabled or without Redis, and fails open when
// Redis errors.
func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.Scripter, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}
	tb := &tokenBucket{cfg: cfg, rdb: rdb, log: log.Named("ratelimit"), now: time.Now}
	return tb.middleware
}

func (tb *tokenBucket) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cfg := tb.cfg
		key := buildRateKey(cfg, c)
		args := []any{
			tb.now().UnixMilli(),
			cfg.Capacity,
			cfg.RefillTokens,
			cfg.RefillInterval.Milliseconds(),
			int64(cfg.TTL / time.Second),
		}

		vals, err := limiterScript.Run(c.Request().Context(), tb.rdb, []string{key}, args...).Result()
		if err != nil {
			tb.log.Warn("limiter unavailable", zap.String("key", key), zap.Error(err))
			return next(c)
		}
		arr, ok := vals.([]any)
		if !ok || len(arr) != 3 {
			tb.log.Warn("unexpected limiter result", zap.String("key", key), zap.Any("result", vals))
			return next(c)
		}
		allowed := fmt.Sprint(arr[0]) == "1"
		remaining := asInt64(arr[1])
		retryMs := asInt64(arr[2])

		c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
		c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			secs := max(int(math.Ceil(float64(retryMs)/1000.0)), 0)
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				tb.log.Info("request throttled", zap.String("key", key), zap.Int64("retry_ms", retryMs))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"code":        "TOO_MANY_REQUESTS",
				"retry_after": secs,
			})
		}
		if cfg.Debug {
			c.Response().Header().Set("X-RateLimit-Key", key)
		}
		return next(c)
	}
}

func asInt64(v any) int64 {
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

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
