package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/admin"
	"github.com/bayarin/bayarin/internal/auth"
	"github.com/bayarin/bayarin/internal/config"
	"github.com/bayarin/bayarin/internal/middleware"
	"github.com/bayarin/bayarin/internal/response"
	"github.com/bayarin/bayarin/internal/routes"
	"github.com/bayarin/bayarin/internal/transaction"
	"github.com/bayarin/bayarin/internal/user"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Server wraps the Fiber application.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, svcs *Services, logger *slog.Logger) *Server {
	// Params, headers and query values outlive the request in the memory
	// repositories, so they must not alias fasthttp buffers.
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		Immutable:    true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: response.ErrorHandler(logger),
	})

	routes.Setup(app, routes.Deps{
		DB:           svcs.DB,
		Cache:        svcs.Cache,
		Logger:       logger,
		Tokens:       svcs.Tokens,
		Auth:         auth.NewHandler(svcs.Auth, svcs.Formatter),
		Users:        user.NewHandler(svcs.Users, svcs.Formatter),
		Wallets:      wallet.NewHandler(svcs.Wallets, svcs.Formatter),
		Transactions: transaction.NewHandler(svcs.Engine, svcs.Wallets, svcs.Formatter),
		Admin:        admin.NewHandler(svcs.Admin, svcs.Formatter),
		LoginLimiter: middleware.LoginRateLimit(svcs.Cache, cfg.LoginMaxAttempts, cfg.LoginWindow, logger),
	})

	return &Server{app: app, cfg: cfg}
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
