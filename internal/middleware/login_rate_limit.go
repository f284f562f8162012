package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginRateLimitPrefix = "rl:login:"

// LoginRateLimit limits login attempts per account name (email or username)
// or IP within window, using Redis when available.
func LoginRateLimit(cache *redis.Client, maxAttempts int, window time.Duration, logger *slog.Logger) fiber.Handler {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Email    string `json:"email"`
			Username string `json:"username"`
		}
		_ = c.BodyParser(&req)
		subject := strings.ToLower(strings.TrimSpace(req.Email))
		if subject == "" {
			subject = strings.TrimSpace(req.Username)
		}
		if subject == "" {
			subject = c.IP()
		}

		key := loginRateLimitPrefix + c.Path() + ":" + subject
		// SETNX and INCR share one MULTI so the counter always carries a TTL
		var incr *redis.IntCmd
		_, err := cache.TxPipelined(c.UserContext(), func(pipe redis.Pipeliner) error {
			pipe.SetNX(c.UserContext(), key, 0, window)
			incr = pipe.Incr(c.UserContext(), key)
			return nil
		})
		if err != nil {
			logger.Warn("login rate limit unavailable", slog.Any("error", err))
			return c.Next() // fail-open on cache errors
		}
		if cnt := incr.Val(); cnt > int64(maxAttempts) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
