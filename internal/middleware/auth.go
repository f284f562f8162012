package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/auth"
)

const (
	userIDLocal = "user_id"
	adminLocal  = "admin"
)

// UserAuth accepts only user tokens and stores the user id in the request locals.
func UserAuth(tokens *auth.TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := bearer(c)
		if err != nil {
			return err
		}
		claims, err := tokens.ParseUser(raw)
		if err != nil {
			return err
		}
		c.Locals(userIDLocal, claims.UserID)
		return c.Next()
	}
}

// AdminAuth accepts only admin tokens and stores the admin claims in the request locals.
func AdminAuth(tokens *auth.TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := bearer(c)
		if err != nil {
			return err
		}
		claims, err := tokens.ParseAdmin(raw)
		if err != nil {
			return err
		}
		c.Locals(adminLocal, claims)
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" outside UserAuth.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)
	return id
}

// Admin returns the authenticated admin claims.
func Admin(c *fiber.Ctx) (*auth.AdminClaims, bool) {
	claims, ok := c.Locals(adminLocal).(*auth.AdminClaims)
	return claims, ok && claims != nil
}

func bearer(c *fiber.Ctx) (string, error) {
	authz := c.Get(fiber.HeaderAuthorization)
	if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
		return "", fiber.NewError(http.StatusUnauthorized, "missing bearer token")
	}
	token := strings.TrimSpace(authz[len("Bearer "):])
	if token == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "missing bearer token")
	}
	return token, nil
}
