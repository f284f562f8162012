package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/transaction"
)

// RegisterTransactionRoutes wires topups, transfers and transaction queries.
// /history is registered before /:id so it is not captured as an id.
func RegisterTransactionRoutes(r fiber.Router, h *transaction.Handler) {
	r.Post("/topup", h.Topup)
	r.Post("/transfer", h.Transfer)
	r.Get("/history", h.History)
	r.Get("/:id", h.Get)
}
