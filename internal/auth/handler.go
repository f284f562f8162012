package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/money"
	"github.com/bayarin/bayarin/internal/response"
	"github.com/bayarin/bayarin/internal/validation"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Handler exposes registration and login endpoints.
type Handler struct {
	svc       *Service
	formatter money.Formatter
}

func NewHandler(svc *Service, formatter money.Formatter) *Handler {
	return &Handler{svc: svc, formatter: formatter}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	FullName string `json:"full_name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
	PIN      string `json:"pin" validate:"required,len=6,numeric"`
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u identity.User) userView {
	return userView{ID: u.ID, Email: u.Email, Phone: u.Phone, FullName: u.FullName, CreatedAt: u.CreatedAt}
}

// Register creates a user with their three wallets.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	user, wallets, err := h.svc.Register(c.UserContext(), identity.Registration{
		Email:    req.Email,
		Phone:    req.Phone,
		FullName: req.FullName,
		Password: req.Password,
		PIN:      req.PIN,
	})
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusCreated, fiber.Map{
		"user":    newUserView(user),
		"wallets": wallet.NewViews(wallets, h.formatter),
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges user credentials for a token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	user, session, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, fiber.Map{
		"access_token": session.Token,
		"expires_at":   session.ExpiresAt,
		"user":         newUserView(user),
	})
}

type adminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AdminLogin exchanges admin credentials for an admin token.
func (h *Handler) AdminLogin(c *fiber.Ctx) error {
	var req adminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	admin, session, err := h.svc.AdminLogin(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, fiber.Map{
		"access_token": session.Token,
		"expires_at":   session.ExpiresAt,
		"role":         admin.Role,
		"admin":        fiber.Map{
			"id":       admin.ID,
			"username": admin.Username,
			"role":     admin.Role,
		},
	})
}
