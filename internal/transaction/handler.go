package transaction

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/middleware"
	"github.com/bayarin/bayarin/internal/money"
	"github.com/bayarin/bayarin/internal/response"
	"github.com/bayarin/bayarin/internal/validation"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Handler exposes the user facing transaction endpoints.
type Handler struct {
	engine    *Engine
	wallets   *wallet.Service
	formatter money.Formatter
}

// NewHandler builds a transaction HTTP handler.
func NewHandler(engine *Engine, wallets *wallet.Service, formatter money.Formatter) *Handler {
	return &Handler{engine: engine, wallets: wallets, formatter: formatter}
}

type topupRequest struct {
	WalletID       string `json:"wallet_id" validate:"omitempty,uuid"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	ChannelCode    string `json:"channel_code" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=100"`
}

type transferRequest struct {
	ToUserID       string `json:"to_user_id" validate:"required,uuid"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	Description    string `json:"description" validate:"omitempty,max=255"`
	PIN            string `json:"pin" validate:"required,len=6,numeric"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=100"`
}

// Topup funds the caller's wallet through a payment channel.
func (h *Handler) Topup(c *fiber.Ctx) error {
	var req topupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	res, err := h.engine.Topup(c.UserContext(), TopupInput{
		UserID:         middleware.UserID(c),
		WalletID:       req.WalletID,
		Amount:         req.Amount,
		ChannelCode:    req.ChannelCode,
		IdempotencyKey: middleware.ResolveIdempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return err
	}
	return h.receipt(c, res)
}

// Transfer sends money from the caller's main wallet to another user's main wallet.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	ctx := c.UserContext()
	userID := middleware.UserID(c)
	from, err := h.wallets.Main(ctx, userID)
	if err != nil {
		return err
	}
	to, err := h.wallets.Main(ctx, req.ToUserID)
	if err != nil {
		return err
	}

	res, err := h.engine.Transfer(ctx, TransferInput{
		UserID:         userID,
		FromWalletID:   from.ID,
		ToWalletID:     to.ID,
		Amount:         req.Amount,
		Description:    req.Description,
		PIN:            req.PIN,
		IdempotencyKey: middleware.ResolveIdempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return err
	}
	return h.receipt(c, res)
}

func (h *Handler) receipt(c *fiber.Ctx, res Result) error {
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	return response.OK(c, status, NewReceipt(res.Transaction, h.formatter))
}

// Get returns one of the caller's transactions with its ledger entries.
func (h *Handler) Get(c *fiber.Ctx) error {
	detail, err := h.engine.UserDetail(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, NewDetailView(detail, h.formatter))
}

// History lists the caller's transactions, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	limit, offset := normalizePage(c.QueryInt("limit"), c.QueryInt("offset"))
	details, total, err := h.engine.UserHistory(c.UserContext(), middleware.UserID(c), limit, offset)
	if err != nil {
		return err
	}
	return response.Paginated(c, NewDetailViews(details, h.formatter), response.Meta{
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
