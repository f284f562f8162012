package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/user"
)

// RegisterUserRoutes wires the caller's profile and PIN endpoints.
func RegisterUserRoutes(r fiber.Router, h *user.Handler) {
	r.Get("/profile", h.Profile)
	r.Post("/pin", h.SetPIN)
	r.Post("/pin/verify", h.VerifyPIN)
}
