package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/money"
	"github.com/bayarin/bayarin/internal/response"
)

// userIDLocal is where the user auth middleware stores the caller's id.
const userIDLocal = "user_id"

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service   *Service
	formatter money.Formatter
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, formatter money.Formatter) *Handler {
	return &Handler{service: service, formatter: formatter}
}

func callerID(c *fiber.Ctx) (string, error) {
	uid, _ := c.Locals(userIDLocal).(string)
	if uid == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	return uid, nil
}

// Balance returns the caller's wallet of the requested type, main by default.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	t, ok := ParseType(c.Query("type", string(TypeMain)))
	if !ok {
		return apperr.Validation("type must be one of main, bonus, cashback")
	}
	w, err := h.service.Balance(c.UserContext(), uid, t)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, NewView(w, h.formatter))
}

// All returns every wallet of the caller.
func (h *Handler) All(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	ws, err := h.service.All(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, NewViews(ws, h.formatter))
}

// History pages through the ledger entries of one of the caller's wallets.
func (h *Handler) History(c *fiber.Ctx) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	walletID := c.Params("id")
	limit, offset := ledger.NormalizePage(c.QueryInt("limit"), c.QueryInt("offset"))
	page, err := h.service.History(c.UserContext(), uid, walletID, limit, offset)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, fiber.Map{
		"wallet_id": walletID,
		"entries":   page.Entries,
		"total":     page.Total,
		"limit":     limit,
		"offset":    offset,
	})
}
