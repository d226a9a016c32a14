package middleware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when the counter store is unreachable.
type FailPolicy int

const (
	FailOpen FailPolicy = iota
	FailClosed
)

var errNoStore = errors.New("rate limit store not configured")

// Window is the counter state after one hit.
type Window struct {
	Count   int64
	ResetIn time.Duration
}

// RateLimitBypassed reports whether APP_ENV turns every limiter off.
// Unset, test, development and stress all bypass.
func RateLimitBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

func rateLimitKey(resource, id string) string {
	return "rl:" + resource + ":" + id
}

// hitScript increments the counter and starts the window on the first hit,
// atomically, so a key can never be left without an expiry.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// Hit counts one request against resource/id in a fixed window.
func Hit(ctx context.Context, rdb *redis.Client, resource, id string, window time.Duration) (Window, error) {
	if rdb == nil {
		return Window{}, errNoStore
	}

	res, err := hitScript.Run(ctx, rdb, []string{rateLimitKey(resource, id)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		RedisErrors.WithLabelValues("eval").Inc()
		return Window{}, err
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("unexpected rate limit reply %v", res)
	}

	reset := time.Duration(res[1]) * time.Millisecond
	if reset <= 0 {
		reset = window
	}
	return Window{Count: res[0], ResetIn: reset}, nil
}

// CheckRateLimit reports whether another request for resource/id fits in limit.
// It always allows when limiting is bypassed for the environment.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if RateLimitBypassed() {
		return true, nil
	}
	w, err := Hit(ctx, rdb, resource, id, window)
	if err != nil {
		return false, err
	}
	return w.Count <= int64(limit), nil
}

// RateLimit limits requests per user (or per IP before authentication) with FailOpen.
// The optional name groups several routes under one counter. A non-positive limit disables it.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit store failure policy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		if RateLimitBypassed() {
			return c.Next()
		}

		id := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok {
			id = fmt.Sprintf("user:%d", uid)
		}
		resource := c.Route().Path
		if len(name) > 0 {
			resource = name[0]
		}

		w, err := Hit(c.UserContext(), rdb, resource, id, window)
		if err != nil {
			if policy == FailOpen {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limit store unavailable, failing closed",
				"resource", resource, "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rate limit unavailable"})
		}

		remaining := int64(limit) - w.Count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if w.Count > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(w.ResetIn.Round(time.Second).Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
