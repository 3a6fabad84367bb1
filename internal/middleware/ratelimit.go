package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"parley/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when the counter store cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

var errNoLimiterStore = errors.New("rate limiter has no redis client")

// window is a fixed-window counter read back from Redis.
type window struct {
	count   int64
	resetIn time.Duration
}

func hitWindow(ctx context.Context, rdb *redis.Client, key string, length time.Duration) (window, error) {
	if rdb == nil {
		return window{}, errNoLimiterStore
	}

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	}); err != nil {
		return window{}, err
	}

	w := window{count: incr.Val(), resetIn: ttl.Val()}
	if w.resetIn <= 0 {
		// First hit in this window, or a key that lost its expiry.
		if err := rdb.Expire(ctx, key, length).Err(); err != nil {
			return window{}, err
		}
		w.resetIn = length
	}
	return w, nil
}

func limiterKey(resource, id string) string {
	return fmt.Sprintf("rl:%s:%s", resource, id)
}

// CheckRateLimit counts one hit for id against resource and reports whether
// it is still within limit for the current window.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, length time.Duration) (bool, error) {
	w, err := hitWindow(ctx, rdb, limiterKey(resource, id), length)
	if err != nil {
		return false, err
	}
	return w.count <= int64(limit), nil
}

// RateLimit allows limit requests per window for each caller, failing open.
// Callers are keyed by user id when authenticated and by IP otherwise. name
// overrides the request path as the counter name. A non-positive limit
// disables the check.
func RateLimit(rdb *redis.Client, limit int, length time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, length, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit FailPolicy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, length time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limit <= 0 {
			return c.Next()
		}

		resource := c.Path()
		if len(name) > 0 && name[0] != "" {
			resource = name[0]
		}
		caller := "ip:" + c.IP()
		if uid := CurrentUserID(c); uid != 0 {
			caller = fmt.Sprintf("user:%d", uid)
		}

		w, err := hitWindow(c.UserContext(), rdb, limiterKey(resource, caller), length)
		if err != nil {
			observability.Logger.WarnContext(c.UserContext(), "rate limiter store unavailable",
				slog.String("resource", resource),
				slog.Bool("fail_closed", policy == FailClosed),
				slog.String("error", err.Error()))
			if policy == FailClosed {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
					"code":  "RATE_LIMIT_UNAVAILABLE",
				})
			}
			return c.Next()
		}

		remaining := int64(limit) - w.count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if w.count > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(w.resetIn.Round(time.Second)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
