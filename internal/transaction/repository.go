package transaction

import (
	"context"
	"time"
)

// Repository persists transactions. Every method joins the unit carried by ctx.
type Repository interface {
	// Create inserts a transaction. A second non-failed transaction with the
	// same initiator, type and idempotency key yields ErrDuplicateKey.
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	// GetForUpdate locks the row until the surrounding unit ends.
	GetForUpdate(ctx context.Context, id string) (Transaction, error)
	// FindByIdempotencyKey returns the non-failed transaction for the key.
	FindByIdempotencyKey(ctx context.Context, initiatorID string, t Type, key string) (Transaction, error)
	// UpdateStatus moves the transaction from -> to. A transaction no longer
	// in from yields ErrStatusChanged.
	UpdateStatus(ctx context.Context, id string, from, to Status, failureReason string) (Transaction, error)
	// ListByWallets returns transactions touching any of the wallets, newest
	// first, and the total match count.
	ListByWallets(ctx context.Context, walletIDs []string, limit, offset int) ([]Transaction, int, error)
	// ListByReference returns the refunds and reversals of an original, oldest first.
	ListByReference(ctx context.Context, referenceID string) ([]Transaction, error)
	// RefundedAmount sums the successful refunds and reversals of an original.
	RefundedAmount(ctx context.Context, referenceID string) (int64, error)
	// ListPending returns pending transactions created before cutoff, oldest first.
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]Transaction, error)
	// Search returns the transactions matching filter, newest first, and the
	// total match count.
	Search(ctx context.Context, filter Filter) ([]Transaction, int, error)
}

// Filter narrows a back office transaction search. Zero values match
// everything; a non-nil empty WalletIDs matches nothing.
type Filter struct {
	WalletIDs []string
	Type      Type
	Status    Status
	From      time.Time
	To        time.Time
	MinAmount int64
	MaxAmount int64
	Limit     int
	Offset    int
}

func (f Filter) matches(tx Transaction) bool {
	if f.WalletIDs != nil {
		found := false
		for _, id := range f.WalletIDs {
			if tx.Involves(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	switch {
	case f.Type != "" && tx.Type != f.Type:
		return false
	case f.Status != "" && tx.Status != f.Status:
		return false
	case !f.From.IsZero() && tx.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && tx.CreatedAt.After(f.To):
		return false
	case f.MinAmount > 0 && tx.Amount < f.MinAmount:
		return false
	case f.MaxAmount > 0 && tx.Amount > f.MaxAmount:
		return false
	}
	return true
}

func applyStatus(tx Transaction, to Status, failureReason string, now time.Time) Transaction {
	tx.Status = to
	tx.UpdatedAt = now
	if to == StatusFailed {
		tx.FailureReason = failureReason
	}
	if to == StatusSuccess || to == StatusFailed {
		completed := now
		tx.CompletedAt = &completed
	}
	return tx
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
