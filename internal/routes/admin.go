package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/admin"
	"github.com/bayarin/bayarin/internal/auth"
)

// RegisterAdminRoutes wires the back office. Every route past login requires
// an admin token and the role the operation's policy names.
func RegisterAdminRoutes(r fiber.Router, login *auth.Handler, h *admin.Handler, adminAuth, rateLimiter fiber.Handler) {
	if rateLimiter != nil {
		r.Post("/auth/login", rateLimiter, login.AdminLogin)
	} else {
		r.Post("/auth/login", login.AdminLogin)
	}

	refund := r.Group("/refund", adminAuth)
	refund.Post("/", admin.RequirePermission(admin.OpRefund), h.Refund)
	refund.Post("/reverse", admin.RequirePermission(admin.OpReverse), h.Reverse)
	refund.Get("/history/:id", admin.RequirePermission(admin.OpViewLedger), h.RefundHistory)

	ledger := r.Group("/ledger", adminAuth)
	ledger.Get("/", admin.RequirePermission(admin.OpViewLedger), h.Ledger)
	ledger.Get("/wallet/:id", admin.RequirePermission(admin.OpViewLedger), h.WalletLedger)
	ledger.Get("/wallet/:id/validate", admin.RequirePermission(admin.OpValidateBalance), h.ValidateBalance)
	ledger.Get("/transaction/:id", admin.RequirePermission(admin.OpViewLedger), h.TransactionLedger)

	wallets := r.Group("/wallets", adminAuth)
	wallets.Post("/:id/freeze", admin.RequirePermission(admin.OpFreezeWallet), h.Freeze)
	wallets.Post("/:id/unfreeze", admin.RequirePermission(admin.OpUnfreezeWallet), h.Unfreeze)

	transactions := r.Group("/transactions", adminAuth, admin.RequirePermission(admin.OpMonitorTransactions))
	transactions.Get("/", h.Transactions)
	transactions.Get("/pending", h.PendingTransactions)
	transactions.Get("/failed", h.FailedTransactions)
	transactions.Get("/:id", h.Transaction)

	users := r.Group("/users", adminAuth)
	users.Get("/search", admin.RequirePermission(admin.OpInspectUsers), h.SearchUsers)
	users.Get("/:id", admin.RequirePermission(admin.OpInspectUsers), h.UserDetails)
	users.Get("/:id/wallets", admin.RequirePermission(admin.OpInspectUsers), h.UserWallets)
	users.Get("/:id/transactions", admin.RequirePermission(admin.OpMonitorTransactions), h.UserTransactions)

	r.Get("/audit-logs", adminAuth, admin.RequirePermission(admin.OpViewAuditLogs), h.AuditLogs)
}
