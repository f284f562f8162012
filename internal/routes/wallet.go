package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/wallet"
)

// RegisterWalletRoutes wires the caller's wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/balance", h.Balance)
	r.Get("/all", h.All)
	r.Get("/:id/history", h.History)
}
