package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/autoshop-identity/internal/apierror"
	"github.com/iliyamo/autoshop-identity/internal/config"
)

// takeToken refills the bucket in whole intervals, then tries to take one
// token.  It returns {allowed, remaining, retry_after_ms}.
var takeToken = redis.NewScript(`
local now, cap, refill, every, ttl =
	tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens, at = tonumber(b[1]) or cap, tonumber(b[2]) or now
local steps = math.floor(math.max(0, now - at) / every)
if steps > 0 then
	tokens = math.min(cap, tokens + steps * refill)
	at = at + steps * every
end
local ok, wait = 0, 0
if tokens > 0 then
	ok, tokens = 1, tokens - 1
else
	wait = math.max(0, every - (now - at))
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'at', at)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, tokens, wait}
`)

// NewTokenBucket throttles the credential endpoints (register, login,
// refresh) with a per-key bucket in Redis.  Those are the routes a
// password-guessing client hammers; the bucket key is chosen by
// cfg.KeyStrategy.  It fails open: a disabled limiter, a nil client or a
// Redis error lets the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.Scripter, log *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	log = log.With("component", "ratelimit")
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := bucketKey(cfg, c)
			res, err := takeToken.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL/time.Second),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				log.Warn("limiter unavailable; allowing request", "key", key, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if res[0] == 1 {
				return next(c)
			}

			retry := (res[2] + 999) / 1000
			h.Set("Retry-After", strconv.FormatInt(retry, 10))
			log.Info("throttled", "key", key, "retry_after_s", retry)
			return apierror.New(c, http.StatusTooManyRequests, apierror.CodeTooManyRequests, "too many attempts, retry later")
		}
	}
}

// bucketKey builds "<prefix>:ip:<addr>", "<prefix>:route:<method path>" or
// both.  The limiter runs before any session is known, so keys never
// include a principal.
func bucketKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch cfg.KeyStrategy {
	case "ip":
		parts = append(parts, "ip", ip)
	case "route":
		parts = append(parts, "route", route)
	default:
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}
