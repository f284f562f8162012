package middleware

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyKeyLocal  = "idempotency_key"
	maxIdempotencyKey    = 100
)

// IdempotencyKey accepts an optional Idempotency-Key header on unsafe
// methods. A well-formed key is stored in the request locals so handlers can
// use it when the body carries none.
func IdempotencyKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return c.Next()
		}
		if !validIdempotencyKey(key) {
			return fiber.NewError(http.StatusBadRequest, "invalid Idempotency-Key header")
		}
		c.Locals(idempotencyKeyLocal, key)
		return c.Next()
	}
}

// ResolveIdempotencyKey prefers the key sent in the body and falls back to the header.
func ResolveIdempotencyKey(c *fiber.Ctx, bodyKey string) string {
	if key := strings.TrimSpace(bodyKey); key != "" {
		return key
	}
	key, _ := c.Locals(idempotencyKeyLocal).(string)
	return key
}

func validIdempotencyKey(key string) bool {
	if len(key) > maxIdempotencyKey {
		return false
	}
	for _, r := range key {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
