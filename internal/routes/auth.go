package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/auth"
)

// RegisterAuthRoutes wires user registration and login.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/register", h.Register)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}
