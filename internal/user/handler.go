package user

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/middleware"
	"github.com/bayarin/bayarin/internal/money"
	"github.com/bayarin/bayarin/internal/response"
	"github.com/bayarin/bayarin/internal/validation"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Handler exposes the profile endpoints.
type Handler struct {
	svc       *Service
	formatter money.Formatter
}

// NewHandler builds a profile HTTP handler.
func NewHandler(svc *Service, formatter money.Formatter) *Handler {
	return &Handler{svc: svc, formatter: formatter}
}

type profileView struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone,omitempty"`
	FullName  string        `json:"full_name"`
	Status    string        `json:"status"`
	HasPIN    bool          `json:"has_pin"`
	Wallets   []wallet.View `json:"wallets"`
	CreatedAt time.Time     `json:"created_at"`
}

type setPINRequest struct {
	CurrentPIN string `json:"current_pin" validate:"omitempty,len=6,numeric"`
	PIN        string `json:"pin" validate:"required,len=6,numeric"`
}

type verifyPINRequest struct {
	PIN string `json:"pin" validate:"required,len=6,numeric"`
}

// Profile returns the caller's account and wallets.
func (h *Handler) Profile(c *fiber.Ctx) error {
	p, err := h.svc.Profile(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, profileView{
		ID:        p.ID,
		Email:     p.Email,
		Phone:     p.Phone,
		FullName:  p.FullName,
		Status:    p.Status,
		HasPIN:    p.HasPIN,
		Wallets:   wallet.NewViews(p.Wallets, h.formatter),
		CreatedAt: p.CreatedAt,
	})
}

// SetPIN changes the caller's transaction PIN.
func (h *Handler) SetPIN(c *fiber.Ctx) error {
	var req setPINRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	if err := h.svc.SetPIN(c.UserContext(), middleware.UserID(c), req.CurrentPIN, req.PIN); err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, fiber.Map{"message": "PIN updated"})
}

// VerifyPIN checks the caller's transaction PIN.
func (h *Handler) VerifyPIN(c *fiber.Ctx) error {
	var req verifyPINRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	if err := h.svc.VerifyPIN(c.UserContext(), middleware.UserID(c), req.PIN); err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, fiber.Map{"valid": true})
}
