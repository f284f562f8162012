package admin

import (
	"context"
	"time"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/transaction"
)

const defaultFailedWindowDays = 7

// TransactionFilter narrows a back office transaction search. UserID
// expands to the user's wallets.
type TransactionFilter struct {
	UserID    string             `json:"user_id,omitempty"`
	WalletID  string             `json:"wallet_id,omitempty"`
	Type      transaction.Type   `json:"transaction_type,omitempty"`
	Status    transaction.Status `json:"status,omitempty"`
	StartDate *time.Time         `json:"start_date,omitempty"`
	EndDate   *time.Time         `json:"end_date,omitempty"`
	MinAmount int64              `json:"min_amount,omitempty"`
	MaxAmount int64              `json:"max_amount,omitempty"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// TransactionResult is one page of a transaction search with the filter used.
type TransactionResult struct {
	Transactions []transaction.Transaction `json:"transactions"`
	Total        int                       `json:"total"`
	Filter       TransactionFilter         `json:"filter"`
}

// Transactions searches transactions across all wallets.
func (s *Service) Transactions(ctx context.Context, actor Actor, filter TransactionFilter) (TransactionResult, error) {
	if err := authorize(actor, OpMonitorTransactions); err != nil {
		return TransactionResult{}, err
	}
	if err := checkTransactionFilter(filter); err != nil {
		return TransactionResult{}, err
	}

	walletIDs, err := s.filterWallets(ctx, filter.UserID, filter.WalletID)
	if err != nil {
		return TransactionResult{}, err
	}
	search := transaction.Filter{
		WalletIDs: walletIDs,
		Type:      filter.Type,
		Status:    filter.Status,
		MinAmount: filter.MinAmount,
		MaxAmount: filter.MaxAmount,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}
	if filter.StartDate != nil {
		search.From = *filter.StartDate
	}
	if filter.EndDate != nil {
		search.To = *filter.EndDate
	}

	txs, total, err := s.engine.Search(ctx, search)
	if err != nil {
		return TransactionResult{}, err
	}
	filter.Limit, filter.Offset = ledger.NormalizePage(filter.Limit, filter.Offset)
	return TransactionResult{Transactions: txs, Total: total, Filter: filter}, nil
}

func checkTransactionFilter(filter TransactionFilter) error {
	switch filter.Type {
	case "", transaction.TypeTopup, transaction.TypeTransfer, transaction.TypePayment, transaction.TypeRefund, transaction.TypeReversal:
	default:
		return apperr.Validation("unknown transaction_type %q", filter.Type)
	}
	switch filter.Status {
	case "", transaction.StatusPending, transaction.StatusSuccess, transaction.StatusFailed, transaction.StatusReversed:
	default:
		return apperr.Validation("unknown status %q", filter.Status)
	}
	if filter.MinAmount < 0 || filter.MaxAmount < 0 {
		return apperr.Validation("amount bounds must not be negative")
	}
	if filter.MaxAmount > 0 && filter.MaxAmount < filter.MinAmount {
		return apperr.Validation("max_amount must not be below min_amount")
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return apperr.Validation("end_date must not be before start_date")
	}
	return nil
}

// PendingTransactions lists transactions still waiting to settle.
func (s *Service) PendingTransactions(ctx context.Context, actor Actor, limit, offset int) (TransactionResult, error) {
	return s.Transactions(ctx, actor, TransactionFilter{Status: transaction.StatusPending, Limit: limit, Offset: offset})
}

// FailedTransactions lists transactions that failed within the last days.
// Zero or negative days means the last week.
func (s *Service) FailedTransactions(ctx context.Context, actor Actor, days, limit, offset int) (TransactionResult, error) {
	if days <= 0 {
		days = defaultFailedWindowDays
	}
	since := s.now().AddDate(0, 0, -days)
	return s.Transactions(ctx, actor, TransactionFilter{
		Status:    transaction.StatusFailed,
		StartDate: &since,
		Limit:     limit,
		Offset:    offset,
	})
}

// UserTransactions lists the transactions touching any wallet of the user.
func (s *Service) UserTransactions(ctx context.Context, actor Actor, userID string, limit, offset int) (TransactionResult, error) {
	if err := authorize(actor, OpMonitorTransactions); err != nil {
		return TransactionResult{}, err
	}
	if _, err := s.users.User(ctx, userID); err != nil {
		return TransactionResult{}, err
	}
	return s.Transactions(ctx, actor, TransactionFilter{UserID: userID, Limit: limit, Offset: offset})
}

// Transaction returns a transaction with its ledger entries.
func (s *Service) Transaction(ctx context.Context, actor Actor, id string) (transaction.Detail, error) {
	if err := authorize(actor, OpMonitorTransactions); err != nil {
		return transaction.Detail{}, err
	}
	return s.engine.Detail(ctx, id)
}
