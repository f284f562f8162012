package transaction

import (
	"time"

	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/money"
)

// Receipt is the response to a topup, transfer, refund or reversal.
type Receipt struct {
	TransactionID     string    `json:"transaction_id"`
	Type              Type      `json:"type"`
	Amount            int64     `json:"amount"`
	AmountDisplay     string    `json:"amount_display"`
	Status            Status    `json:"status"`
	Description       string    `json:"description"`
	ReferenceID       string    `json:"reference_id,omitempty"`
	ExternalReference string    `json:"external_reference,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewReceipt renders tx with a display amount.
func NewReceipt(tx Transaction, f money.Formatter) Receipt {
	return Receipt{
		TransactionID:     tx.ID,
		Type:              tx.Type,
		Amount:            tx.Amount,
		AmountDisplay:     f.Format(tx.Amount),
		Status:            tx.Status,
		Description:       tx.Description,
		ReferenceID:       tx.ReferenceID,
		ExternalReference: tx.ExternalReference,
		CreatedAt:         tx.CreatedAt,
	}
}

// DetailView is a transaction with display amounts and its ledger entries.
type DetailView struct {
	Transaction
	AmountDisplay string         `json:"amount_display"`
	Entries       []ledger.Entry `json:"ledger_entries"`
}

// NewDetailView renders d with a display amount.
func NewDetailView(d Detail, f money.Formatter) DetailView {
	entries := d.Entries
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return DetailView{Transaction: d.Transaction, AmountDisplay: f.Format(d.Amount), Entries: entries}
}

// NewDetailViews renders a page of details.
func NewDetailViews(ds []Detail, f money.Formatter) []DetailView {
	views := make([]DetailView, 0, len(ds))
	for _, d := range ds {
		views = append(views, NewDetailView(d, f))
	}
	return views
}
