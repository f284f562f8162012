package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/middleware"
)

// RequirePermission rejects admins whose role does not grant op. It must run
// after middleware.AdminAuth.
func RequirePermission(op Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return err
		}
		if !Allowed(actor.Role, op) {
			return ErrForbidden
		}
		return c.Next()
	}
}

func actorFrom(c *fiber.Ctx) (Actor, error) {
	claims, ok := middleware.Admin(c)
	if !ok {
		return Actor{}, fiber.NewError(fiber.StatusUnauthorized, "admin authentication required")
	}
	return Actor{ID: claims.AdminID, Role: claims.Role}, nil
}
