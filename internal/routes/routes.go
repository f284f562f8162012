package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bayarin/bayarin/internal/admin"
	"github.com/bayarin/bayarin/internal/auth"
	"github.com/bayarin/bayarin/internal/middleware"
	"github.com/bayarin/bayarin/internal/transaction"
	"github.com/bayarin/bayarin/internal/user"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Deps aggregates the handlers and shared clients required to wire routes.
type Deps struct {
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Tokens       *auth.TokenManager
	Auth         *auth.Handler
	Users        *user.Handler
	Wallets      *wallet.Handler
	Transactions *transaction.Handler
	Admin        *admin.Handler
	LoginLimiter fiber.Handler
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLog(d.Logger))
	app.Use(middleware.IdempotencyKey())

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	RegisterAuthRoutes(api, d.Auth, d.LoginLimiter)

	userAuth := middleware.UserAuth(d.Tokens)
	RegisterWalletRoutes(api.Group("/wallet", userAuth), d.Wallets)
	RegisterTransactionRoutes(api.Group("/transaction", userAuth), d.Transactions)
	RegisterUserRoutes(api.Group("/user", userAuth), d.Users)

	RegisterAdminRoutes(api.Group("/admin"), d.Auth, d.Admin, middleware.AdminAuth(d.Tokens), d.LoginLimiter)
}
