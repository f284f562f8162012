package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/audit"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/middleware"
	"github.com/bayarin/bayarin/internal/money"
	"github.com/bayarin/bayarin/internal/response"
	"github.com/bayarin/bayarin/internal/transaction"
	"github.com/bayarin/bayarin/internal/validation"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Handler exposes the back office endpoints.
type Handler struct {
	svc       *Service
	formatter money.Formatter
}

func NewHandler(svc *Service, formatter money.Formatter) *Handler {
	return &Handler{svc: svc, formatter: formatter}
}

type refundRequest struct {
	OriginalTransactionID string `json:"original_transaction_id" validate:"required,uuid"`
	Amount                int64  `json:"amount" validate:"gte=0"`
	Reason                string `json:"reason" validate:"required,max=500"`
	IdempotencyKey        string `json:"idempotency_key" validate:"omitempty,max=100"`
}

type reverseRequest struct {
	OriginalTransactionID string `json:"original_transaction_id" validate:"required,uuid"`
	Reason                string `json:"reason" validate:"required,max=500"`
	IdempotencyKey        string `json:"idempotency_key" validate:"omitempty,max=100"`
}

type statusRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Refund refunds part or all of a transaction.
func (h *Handler) Refund(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	res, err := h.svc.Refund(c.UserContext(), actor, RefundRequest{
		OriginalTransactionID: req.OriginalTransactionID,
		Amount:                req.Amount,
		Reason:                req.Reason,
		IdempotencyKey:        middleware.ResolveIdempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return err
	}
	return h.receipt(c, res)
}

// Reverse fully reverses a transaction.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req reverseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	res, err := h.svc.Reverse(c.UserContext(), actor, ReverseRequest{
		OriginalTransactionID: req.OriginalTransactionID,
		Reason:                req.Reason,
		IdempotencyKey:        middleware.ResolveIdempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return err
	}
	return h.receipt(c, res)
}

func (h *Handler) receipt(c *fiber.Ctx, res transaction.Result) error {
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	return response.OK(c, status, transaction.NewReceipt(res.Transaction, h.formatter))
}

// RefundHistory lists the refunds of a transaction.
func (h *Handler) RefundHistory(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	summary, err := h.svc.RefundHistory(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, summary)
}

// Ledger searches ledger entries.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	filter := LedgerFilter{
		UserID:        c.Query("user_id"),
		WalletID:      c.Query("wallet_id"),
		TransactionID: c.Query("transaction_id"),
		EntryType:     ledger.EntryType(strings.ToLower(c.Query("entry_type"))),
		Limit:         c.QueryInt("limit"),
		Offset:        c.QueryInt("offset"),
	}
	if filter.StartDate, err = parseDate(c.Query("start_date"), false); err != nil {
		return err
	}
	if filter.EndDate, err = parseDate(c.Query("end_date"), true); err != nil {
		return err
	}

	result, err := h.svc.Ledger(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, result)
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperr.Validation("invalid date %q, use YYYY-MM-DD or RFC 3339", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// WalletLedger pages through one wallet's entries.
func (h *Handler) WalletLedger(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	wl, err := h.svc.WalletLedger(c.UserContext(), actor, c.Params("id"), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, fiber.Map{
		"wallet":  wallet.NewView(wl.Wallet, h.formatter),
		"entries": wl.Entries,
		"total":   wl.Total,
		"limit":   wl.Limit,
		"offset":  wl.Offset,
	})
}

// ValidateBalance compares a wallet's balance with its ledger.
func (h *Handler) ValidateBalance(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	check, err := h.svc.ValidateWalletBalance(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, check)
}

// TransactionLedger returns a transaction with its entries.
func (h *Handler) TransactionLedger(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.TransactionLedger(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, transaction.NewDetailView(detail, h.formatter))
}

// Freeze freezes a wallet.
func (h *Handler) Freeze(c *fiber.Ctx) error {
	return h.setStatus(c, h.svc.FreezeWallet)
}

// Unfreeze reactivates a wallet.
func (h *Handler) Unfreeze(c *fiber.Ctx) error {
	return h.setStatus(c, h.svc.UnfreezeWallet)
}

type statusFunc func(ctx context.Context, actor Actor, walletID, reason string) (wallet.Wallet, error)

func (h *Handler) setStatus(c *fiber.Ctx, apply statusFunc) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	w, err := apply(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, wallet.NewView(w, h.formatter))
}

// AuditLogs lists the audit trail.
func (h *Handler) AuditLogs(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	filter := audit.Filter{
		ActorID:    c.Query("actor_id"),
		ResourceID: c.Query("resource_id"),
		Action:     audit.Action(c.Query("action")),
		Limit:      c.QueryInt("limit"),
		Offset:     c.QueryInt("offset"),
	}
	entries, total, err := h.svc.AuditLogs(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	limit, offset := ledger.NormalizePage(filter.Limit, filter.Offset)
	return response.Paginated(c, entries, response.Meta{Total: total, Limit: limit, Offset: offset})
}

// Transactions searches transactions across all users.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	filter := TransactionFilter{
		UserID:    c.Query("user_id"),
		WalletID:  c.Query("wallet_id"),
		Type:      transaction.Type(strings.ToLower(c.Query("transaction_type"))),
		Status:    transaction.Status(strings.ToLower(c.Query("status"))),
		MinAmount: int64(c.QueryInt("min_amount")),
		MaxAmount: int64(c.QueryInt("max_amount")),
		Limit:     c.QueryInt("limit"),
		Offset:    c.QueryInt("offset"),
	}
	if filter.StartDate, err = parseDate(c.Query("start_date"), false); err != nil {
		return err
	}
	if filter.EndDate, err = parseDate(c.Query("end_date"), true); err != nil {
		return err
	}

	result, err := h.svc.Transactions(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, result)
}

// PendingTransactions lists transactions that have not settled.
func (h *Handler) PendingTransactions(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.svc.PendingTransactions(c.UserContext(), actor, c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, result)
}

// FailedTransactions lists recent failures.
func (h *Handler) FailedTransactions(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.svc.FailedTransactions(c.UserContext(), actor, c.QueryInt("days"), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, result)
}

// Transaction returns one transaction with its entries.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.Transaction(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, transaction.NewDetailView(detail, h.formatter))
}

// UserTransactions lists one user's transactions.
func (h *Handler) UserTransactions(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.svc.UserTransactions(c.UserContext(), actor, c.Params("id"), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, result)
}

// SearchUsers finds users by email, phone or name.
func (h *Handler) SearchUsers(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	users, total, err := h.svc.SearchUsers(c.UserContext(), actor, c.Query("q"), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	limit, offset := ledger.NormalizePage(c.QueryInt("limit"), c.QueryInt("offset"))
	return response.Paginated(c, users, response.Meta{Total: total, Limit: limit, Offset: offset})
}

type walletActivityView struct {
	wallet.View
	TransactionCount int        `json:"transaction_count"`
	LastActivityAt   *time.Time `json:"last_activity_at"`
}

func (h *Handler) walletActivityViews(ws []WalletActivity) []walletActivityView {
	views := make([]walletActivityView, 0, len(ws))
	for _, w := range ws {
		views = append(views, walletActivityView{
			View:             wallet.NewView(w.Wallet, h.formatter),
			TransactionCount: w.TransactionCount,
			LastActivityAt:   w.LastActivityAt,
		})
	}
	return views
}

type userDetailsView struct {
	UserDetails
	Wallets             []walletActivityView `json:"wallets"`
	TotalBalanceDisplay string               `json:"total_balance_display"`
}

// UserDetails returns a user with wallet and transaction summaries.
func (h *Handler) UserDetails(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	details, err := h.svc.UserDetails(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, userDetailsView{
		UserDetails:         details,
		Wallets:             h.walletActivityViews(details.Wallets),
		TotalBalanceDisplay: h.formatter.Format(details.TotalBalance),
	})
}

// UserWallets lists a user's wallets with activity counters.
func (h *Handler) UserWallets(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	wallets, err := h.svc.UserWallets(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return response.OK(c, http.StatusOK, h.walletActivityViews(wallets))
}
