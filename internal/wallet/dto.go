package wallet

import (
	"time"

	"github.com/bayarin/bayarin/internal/money"
)

// View is the JSON representation of a wallet.
type View struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Type           Type      `json:"wallet_type"`
	Balance        int64     `json:"balance"`
	BalanceDisplay string    `json:"balance_display"`
	Currency       string    `json:"currency"`
	Status         Status    `json:"status"`
	StatusReason   string    `json:"status_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewView renders w with its balance formatted by f.
func NewView(w Wallet, f money.Formatter) View {
	return View{
		ID:             w.ID,
		UserID:         w.OwnerID,
		Type:           w.Type,
		Balance:        w.Balance,
		BalanceDisplay: f.Format(w.Balance),
		Currency:       w.Currency,
		Status:         w.Status,
		StatusReason:   w.StatusReason,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

// NewViews renders a list of wallets.
func NewViews(ws []Wallet, f money.Formatter) []View {
	views := make([]View, 0, len(ws))
	for _, w := range ws {
		views = append(views, NewView(w, f))
	}
	return views
}
