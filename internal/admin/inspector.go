package admin

import (
	"context"
	"time"

	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/transaction"
	"github.com/bayarin/bayarin/internal/wallet"
)

// UserSummary is a user as shown in back office search results.
type UserSummary struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	FullName  string    `json:"full_name"`
	Status    string    `json:"status"`
	HasPIN    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserSummary(u identity.User) UserSummary {
	return UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		Phone:     u.Phone,
		FullName:  u.FullName,
		Status:    u.Status,
		HasPIN:    u.HasPIN(),
		CreatedAt: u.CreatedAt,
	}
}

// WalletActivity is a wallet with its transaction counters.
type WalletActivity struct {
	Wallet           wallet.Wallet `json:"-"`
	TransactionCount int           `json:"transaction_count"`
	LastActivityAt   *time.Time    `json:"last_activity_at"`
}

// UserDetails is everything the back office sees about one user.
type UserDetails struct {
	User                UserSummary      `json:"user"`
	Wallets             []WalletActivity `json:"-"`
	TotalBalance        int64            `json:"total_balance"`
	TotalTransactions   int              `json:"total_transactions"`
	SuccessTransactions int              `json:"success_transactions"`
	FailedTransactions  int              `json:"failed_transactions"`
	LastTransactionAt   *time.Time       `json:"last_transaction_at"`
}

// SearchUsers finds users by email, phone or name.
func (s *Service) SearchUsers(ctx context.Context, actor Actor, query string, limit, offset int) ([]UserSummary, int, error) {
	if err := authorize(actor, OpInspectUsers); err != nil {
		return nil, 0, err
	}
	users, total, err := s.users.Search(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, newUserSummary(u))
	}
	return summaries, total, nil
}

// UserWallets lists a user's wallets with their activity.
func (s *Service) UserWallets(ctx context.Context, actor Actor, userID string) ([]WalletActivity, error) {
	if err := authorize(actor, OpInspectUsers); err != nil {
		return nil, err
	}
	if _, err := s.users.User(ctx, userID); err != nil {
		return nil, err
	}
	return s.walletActivity(ctx, userID)
}

// UserDetails summarizes a user's wallets and transaction outcomes.
func (s *Service) UserDetails(ctx context.Context, actor Actor, userID string) (UserDetails, error) {
	if err := authorize(actor, OpInspectUsers); err != nil {
		return UserDetails{}, err
	}
	user, err := s.users.User(ctx, userID)
	if err != nil {
		return UserDetails{}, err
	}
	wallets, err := s.walletActivity(ctx, user.ID)
	if err != nil {
		return UserDetails{}, err
	}

	details := UserDetails{User: newUserSummary(user), Wallets: wallets}
	ids := make([]string, 0, len(wallets))
	for _, w := range wallets {
		details.TotalBalance += w.Wallet.Balance
		ids = append(ids, w.Wallet.ID)
	}

	details.TotalTransactions, details.LastTransactionAt, err = s.countTransactions(ctx, transaction.Filter{WalletIDs: ids})
	if err != nil {
		return UserDetails{}, err
	}
	if details.SuccessTransactions, _, err = s.countTransactions(ctx, transaction.Filter{WalletIDs: ids, Status: transaction.StatusSuccess}); err != nil {
		return UserDetails{}, err
	}
	if details.FailedTransactions, _, err = s.countTransactions(ctx, transaction.Filter{WalletIDs: ids, Status: transaction.StatusFailed}); err != nil {
		return UserDetails{}, err
	}
	return details, nil
}

func (s *Service) walletActivity(ctx context.Context, userID string) ([]WalletActivity, error) {
	wallets, err := s.wallets.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	activity := make([]WalletActivity, 0, len(wallets))
	for _, w := range wallets {
		count, last, err := s.countTransactions(ctx, transaction.Filter{WalletIDs: []string{w.ID}})
		if err != nil {
			return nil, err
		}
		activity = append(activity, WalletActivity{Wallet: w, TransactionCount: count, LastActivityAt: last})
	}
	return activity, nil
}

// countTransactions returns the match count and the newest match's time.
func (s *Service) countTransactions(ctx context.Context, filter transaction.Filter) (int, *time.Time, error) {
	if filter.WalletIDs == nil {
		filter.WalletIDs = []string{}
	}
	filter.Limit, filter.Offset = 1, 0
	txs, total, err := s.engine.Search(ctx, filter)
	if err != nil {
		return 0, nil, err
	}
	if len(txs) == 0 {
		return total, nil, nil
	}
	last := txs[0].CreatedAt
	return total, &last, nil
}
