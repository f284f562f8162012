package transaction

import (
	"context"

	"github.com/bayarin/bayarin/internal/ledger"
)

// Detail is a transaction with the ledger entries it produced.
type Detail struct {
	Transaction
	Entries []ledger.Entry `json:"ledger_entries"`
}

// Get returns one transaction.
func (e *Engine) Get(ctx context.Context, id string) (Transaction, error) {
	if !validID(id) {
		return Transaction{}, ErrNotFound
	}
	return e.repo.Get(ctx, id)
}

// Detail returns the transaction and its entries.
func (e *Engine) Detail(ctx context.Context, id string) (Detail, error) {
	tx, err := e.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return e.detail(ctx, tx)
}

func (e *Engine) detail(ctx context.Context, tx Transaction) (Detail, error) {
	entries, err := e.ledger.EntriesForTransaction(ctx, tx.ID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Transaction: tx, Entries: entries}, nil
}

// UserDetail returns the transaction only when it touches one of the user's
// wallets. Anything else reads as not found.
func (e *Engine) UserDetail(ctx context.Context, userID, id string) (Detail, error) {
	tx, err := e.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	ids, err := e.walletIDs(ctx, userID)
	if err != nil {
		return Detail{}, err
	}
	for _, walletID := range ids {
		if tx.Involves(walletID) {
			return e.detail(ctx, tx)
		}
	}
	return Detail{}, ErrNotFound
}

// UserHistory lists the transactions touching any wallet of the user.
func (e *Engine) UserHistory(ctx context.Context, userID string, limit, offset int) ([]Detail, int, error) {
	ids, err := e.walletIDs(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return e.History(ctx, ids, limit, offset)
}

// History lists the transactions touching any of walletIDs, newest first.
func (e *Engine) History(ctx context.Context, walletIDs []string, limit, offset int) ([]Detail, int, error) {
	limit, offset = normalizePage(limit, offset)
	txs, total, err := e.repo.ListByWallets(ctx, validIDs(walletIDs), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	details := make([]Detail, 0, len(txs))
	for _, tx := range txs {
		d, err := e.detail(ctx, tx)
		if err != nil {
			return nil, 0, err
		}
		details = append(details, d)
	}
	return details, total, nil
}

// RefundHistory lists the refunds and reversals of a transaction.
func (e *Engine) RefundHistory(ctx context.Context, originalID string) ([]Transaction, error) {
	if _, err := e.Get(ctx, originalID); err != nil {
		return nil, err
	}
	return e.repo.ListByReference(ctx, originalID)
}

// RefundedAmount sums the successful refunds and reversals of a transaction.
func (e *Engine) RefundedAmount(ctx context.Context, originalID string) (int64, error) {
	if !validID(originalID) {
		return 0, ErrNotFound
	}
	return e.repo.RefundedAmount(ctx, originalID)
}

func (e *Engine) walletIDs(ctx context.Context, userID string) ([]string, error) {
	wallets, err := e.wallets.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(wallets))
	for _, w := range wallets {
		ids = append(ids, w.ID)
	}
	return ids, nil
}

// Search lists transactions across all wallets for back office review.
func (e *Engine) Search(ctx context.Context, filter Filter) ([]Transaction, int, error) {
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	if filter.WalletIDs != nil {
		filter.WalletIDs = validIDs(filter.WalletIDs)
	}
	txs, total, err := e.repo.Search(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, total, nil
}
