package ledger

import (
	"context"
	"time"

	"github.com/bayarin/bayarin/internal/apperr"
)

// EntryType is the side of a double-entry posting.
type EntryType string

const (
	Debit  EntryType = "debit"
	Credit EntryType = "credit"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Entry is an immutable ledger row. Seq is assigned by the store and breaks
// ties between entries sharing a CreatedAt.
type Entry struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	TransactionID string    `json:"transaction_id"`
	WalletID      string    `json:"wallet_id"`
	Type          EntryType `json:"entry_type"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// Signed returns the entry's effect on the wallet balance.
func (e Entry) Signed() int64 {
	if e.Type == Debit {
		return -e.Amount
	}
	return e.Amount
}

// Page is one window of a larger result set.
type Page struct {
	Entries []Entry
	Total   int
}

// Filter narrows an admin ledger search. Zero values match everything.
type Filter struct {
	WalletIDs     []string
	TransactionID string
	EntryType     EntryType
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}

// Store is the append-only source of truth for balances.
type Store interface {
	// AppendEntries commits the batch all-or-nothing and assigns Seq and
	// CreatedAt in place.
	AppendEntries(ctx context.Context, entries []Entry) error
	// EntriesForWallet returns the wallet's entries ordered by CreatedAt, Seq.
	EntriesForWallet(ctx context.Context, walletID string, limit, offset int) (Page, error)
	EntriesForTransaction(ctx context.Context, transactionID string) ([]Entry, error)
	// RecomputeBalance replays every entry of the wallet from zero.
	RecomputeBalance(ctx context.Context, walletID string) (int64, error)
	Search(ctx context.Context, filter Filter) (Page, error)
}

// NormalizePage clamps pagination input to the store limits.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// validateBatch rejects batches that would break the append-only invariants:
// every entry must be well formed and every transaction in the batch must
// debit exactly what it credits.
func validateBatch(entries []Entry) error {
	if len(entries) == 0 {
		return apperr.Validation("ledger batch is empty")
	}

	sums := make(map[string]int64)
	for _, e := range entries {
		if e.ID == "" || e.TransactionID == "" || e.WalletID == "" {
			return apperr.Validation("ledger entry is missing an identifier")
		}
		if e.Amount <= 0 {
			return apperr.Validation("ledger entry amount must be positive, got %d", e.Amount)
		}
		switch e.Type {
		case Debit, Credit:
		default:
			return apperr.Validation("unknown entry type %q", e.Type)
		}
		if e.BalanceAfter != e.BalanceBefore+e.Signed() {
			return apperr.Validation("entry %s: balance_after %d does not follow balance_before %d", e.ID, e.BalanceAfter, e.BalanceBefore)
		}
		sums[e.TransactionID] += e.Signed()
	}
	for txID, sum := range sums {
		if sum != 0 {
			return apperr.Validation("transaction %s: debits and credits differ by %d", txID, sum)
		}
	}
	return nil
}

func (f Filter) matches(e Entry) bool {
	if len(f.WalletIDs) > 0 {
		found := false
		for _, id := range f.WalletIDs {
			if id == e.WalletID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.TransactionID != "" && f.TransactionID != e.TransactionID {
		return false
	}
	if f.EntryType != "" && f.EntryType != e.Type {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}
