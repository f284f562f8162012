// Package admin implements the operations back office staff run against
// wallets and transactions: balance validation, freezes, refunds, reversals,
// ledger inspection and the audit trail. Every call is checked against the
// role policy before it touches storage.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/audit"
	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/notification"
	"github.com/bayarin/bayarin/internal/transaction"
	"github.com/bayarin/bayarin/internal/txn"
	"github.com/bayarin/bayarin/internal/wallet"
)

// UserDirectory looks up wallet owners.
type UserDirectory interface {
	User(ctx context.Context, id string) (identity.User, error)
	Search(ctx context.Context, query string, limit, offset int) ([]identity.User, int, error)
}

// Service runs admin operations.
type Service struct {
	engine  *transaction.Engine
	users   UserDirectory
	wallets wallet.Registry
	ledger  ledger.Store
	audits  audit.Repository
	tx      txn.Manager
	events  notification.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds an admin service.
func NewService(engine *transaction.Engine, users UserDirectory, wallets wallet.Registry, store ledger.Store,
	audits audit.Repository, tx txn.Manager, events notification.Publisher, logger *slog.Logger) *Service {
	return &Service{
		engine:  engine,
		users:   users,
		wallets: wallets,
		ledger:  store,
		audits:  audits,
		tx:      tx,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// BalanceCheck compares a wallet's cached balance with its ledger replay.
type BalanceCheck struct {
	WalletID          string `json:"wallet_id"`
	CurrentBalance    int64  `json:"current_balance"`
	CalculatedBalance int64  `json:"calculated_balance"`
	IsValid           bool   `json:"is_valid"`
	Difference        int64  `json:"difference"`
	Message           string `json:"message"`
}

// ValidateWalletBalance replays the wallet's ledger. A mismatch is reported
// and logged, never corrected.
func (s *Service) ValidateWalletBalance(ctx context.Context, actor Actor, walletID string) (BalanceCheck, error) {
	if err := authorize(actor, OpValidateBalance); err != nil {
		return BalanceCheck{}, err
	}
	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return BalanceCheck{}, err
	}
	calculated, err := s.ledger.RecomputeBalance(ctx, w.ID)
	if err != nil {
		return BalanceCheck{}, err
	}

	check := BalanceCheck{
		WalletID:          w.ID,
		CurrentBalance:    w.Balance,
		CalculatedBalance: calculated,
		Difference:        w.Balance - calculated,
	}
	check.IsValid = check.Difference == 0
	if check.IsValid {
		check.Message = "Balance is valid"
		return check, nil
	}

	check.Message = fmt.Sprintf("Balance mismatch! Difference: %d", check.Difference)
	s.logger.Error("wallet balance mismatch",
		slog.String("wallet_id", w.ID),
		slog.Int64("current_balance", w.Balance),
		slog.Int64("calculated_balance", calculated),
		slog.Int64("difference", check.Difference),
		slog.String("admin_id", actor.ID),
	)
	return check, nil
}

// FreezeWallet stops all money movement on the wallet.
func (s *Service) FreezeWallet(ctx context.Context, actor Actor, walletID, reason string) (wallet.Wallet, error) {
	if err := authorize(actor, OpFreezeWallet); err != nil {
		return wallet.Wallet{}, err
	}
	return s.setStatus(ctx, actor, walletID, wallet.StatusFrozen, reason, audit.ActionFreezeWallet)
}

// UnfreezeWallet reactivates a frozen wallet.
func (s *Service) UnfreezeWallet(ctx context.Context, actor Actor, walletID, reason string) (wallet.Wallet, error) {
	if err := authorize(actor, OpUnfreezeWallet); err != nil {
		return wallet.Wallet{}, err
	}
	return s.setStatus(ctx, actor, walletID, wallet.StatusActive, reason, audit.ActionUnfreezeWallet)
}

func (s *Service) setStatus(ctx context.Context, actor Actor, walletID string, status wallet.Status, reason string, action audit.Action) (wallet.Wallet, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return wallet.Wallet{}, apperr.Validation("reason is required")
	}

	var (
		updated wallet.Wallet
		changed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.wallets.GetForUpdate(ctx, walletID)
		if err != nil {
			return err
		}
		if current.Type == wallet.TypeClearing {
			return apperr.Validation("the clearing wallet cannot change status")
		}
		if current.Status == status {
			updated = current
			return nil
		}
		updated, err = s.wallets.SetStatus(ctx, walletID, status, reason, actor.ID)
		if err != nil {
			return err
		}
		changed = true
		description := fmt.Sprintf("Wallet %s status %s -> %s. Reason: %s", walletID, current.Status, status, reason)
		return s.audits.Record(ctx, audit.NewEntry(actor.ID, action, audit.ResourceWallet, walletID, description))
	})
	if err != nil {
		return wallet.Wallet{}, apperr.Storage(err)
	}
	if !changed {
		return updated, nil
	}

	s.logger.Info("wallet status changed",
		slog.String("wallet_id", updated.ID),
		slog.String("status", string(updated.Status)),
		slog.String("admin_id", actor.ID),
	)
	s.publish(ctx, notification.Event{
		Kind:       notification.KindWalletStatusChanged,
		Status:     string(updated.Status),
		WalletID:   updated.ID,
		ActorID:    actor.ID,
		Reason:     reason,
		OccurredAt: updated.UpdatedAt,
	})
	return updated, nil
}

// RefundRequest is an admin refund. Amount zero refunds the remainder.
type RefundRequest struct {
	OriginalTransactionID string
	Amount                int64
	Reason                string
	IdempotencyKey        string
}

// Refund returns money along an original transaction and audits it in the same unit.
func (s *Service) Refund(ctx context.Context, actor Actor, req RefundRequest) (transaction.Result, error) {
	if err := authorize(actor, OpRefund); err != nil {
		return transaction.Result{}, err
	}
	return s.engine.Refund(ctx, transaction.RefundInput{
		ActorID:               actor.ID,
		OriginalTransactionID: req.OriginalTransactionID,
		Amount:                req.Amount,
		Reason:                req.Reason,
		IdempotencyKey:        req.IdempotencyKey,
		OnCommit: func(ctx context.Context, refund, original transaction.Transaction) error {
			description := fmt.Sprintf("Refund transaction %s for amount %d. Reason: %s", original.ID, refund.Amount, req.Reason)
			return s.audits.Record(ctx, audit.NewEntry(actor.ID, audit.ActionRefundTransaction, audit.ResourceTransaction, original.ID, description))
		},
	})
}

// ReverseRequest is an admin reversal.
type ReverseRequest struct {
	OriginalTransactionID string
	Reason                string
	IdempotencyKey        string
}

// Reverse undoes the rest of an original transaction and audits it in the same unit.
func (s *Service) Reverse(ctx context.Context, actor Actor, req ReverseRequest) (transaction.Result, error) {
	if err := authorize(actor, OpReverse); err != nil {
		return transaction.Result{}, err
	}
	return s.engine.Reverse(ctx, transaction.ReverseInput{
		ActorID:               actor.ID,
		OriginalTransactionID: req.OriginalTransactionID,
		Reason:                req.Reason,
		IdempotencyKey:        req.IdempotencyKey,
		OnCommit: func(ctx context.Context, _, original transaction.Transaction) error {
			description := fmt.Sprintf("Reversed transaction %s. Reason: %s", original.ID, req.Reason)
			return s.audits.Record(ctx, audit.NewEntry(actor.ID, audit.ActionReverseTransaction, audit.ResourceTransaction, original.ID, description))
		},
	})
}

// LedgerFilter narrows a ledger search. UserID expands to the user's wallets.
type LedgerFilter struct {
	UserID        string           `json:"user_id,omitempty"`
	WalletID      string           `json:"wallet_id,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	EntryType     ledger.EntryType `json:"entry_type,omitempty"`
	StartDate     *time.Time       `json:"start_date,omitempty"`
	EndDate       *time.Time       `json:"end_date,omitempty"`
	Limit         int              `json:"limit"`
	Offset        int              `json:"offset"`
}

// LedgerResult is one page of a ledger search together with the filter used.
type LedgerResult struct {
	Entries []ledger.Entry `json:"entries"`
	Total   int            `json:"total"`
	Filter  LedgerFilter   `json:"filter"`
}

// Ledger searches entries across wallets.
func (s *Service) Ledger(ctx context.Context, actor Actor, filter LedgerFilter) (LedgerResult, error) {
	if err := authorize(actor, OpViewLedger); err != nil {
		return LedgerResult{}, err
	}
	switch filter.EntryType {
	case "", ledger.Debit, ledger.Credit:
	default:
		return LedgerResult{}, apperr.Validation("entry_type must be debit or credit")
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return LedgerResult{}, apperr.Validation("end_date must not be before start_date")
	}
	filter.Limit, filter.Offset = ledger.NormalizePage(filter.Limit, filter.Offset)

	search := ledger.Filter{
		TransactionID: filter.TransactionID,
		EntryType:     filter.EntryType,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	}
	if filter.StartDate != nil {
		search.From = *filter.StartDate
	}
	if filter.EndDate != nil {
		search.To = *filter.EndDate
	}

	walletIDs, err := s.filterWallets(ctx, filter.UserID, filter.WalletID)
	if err != nil {
		return LedgerResult{}, err
	}
	if walletIDs != nil && len(walletIDs) == 0 {
		return LedgerResult{Entries: []ledger.Entry{}, Filter: filter}, nil
	}
	search.WalletIDs = walletIDs

	page, err := s.ledger.Search(ctx, search)
	if err != nil {
		return LedgerResult{}, err
	}
	return LedgerResult{Entries: page.Entries, Total: page.Total, Filter: filter}, nil
}

// filterWallets returns nil when no wallet restriction applies, and an empty
// slice when the restriction matches nothing.
func (s *Service) filterWallets(ctx context.Context, userID, walletID string) ([]string, error) {
	if userID == "" {
		if walletID == "" {
			return nil, nil
		}
		return []string{walletID}, nil
	}
	wallets, err := s.wallets.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(wallets))
	for _, w := range wallets {
		if walletID == "" || w.ID == walletID {
			ids = append(ids, w.ID)
		}
	}
	return ids, nil
}

// WalletLedger is a wallet with one page of its entries.
type WalletLedger struct {
	Wallet  wallet.Wallet  `json:"wallet"`
	Entries []ledger.Entry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// WalletLedger pages through any wallet's entries.
func (s *Service) WalletLedger(ctx context.Context, actor Actor, walletID string, limit, offset int) (WalletLedger, error) {
	if err := authorize(actor, OpViewLedger); err != nil {
		return WalletLedger{}, err
	}
	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return WalletLedger{}, err
	}
	limit, offset = ledger.NormalizePage(limit, offset)
	page, err := s.ledger.EntriesForWallet(ctx, w.ID, limit, offset)
	if err != nil {
		return WalletLedger{}, err
	}
	return WalletLedger{Wallet: w, Entries: page.Entries, Total: page.Total, Limit: limit, Offset: offset}, nil
}

// TransactionLedger returns a transaction with its entries.
func (s *Service) TransactionLedger(ctx context.Context, actor Actor, transactionID string) (transaction.Detail, error) {
	if err := authorize(actor, OpViewLedger); err != nil {
		return transaction.Detail{}, err
	}
	return s.engine.Detail(ctx, transactionID)
}

// RefundSummary is an original transaction with its refunds and reversals.
type RefundSummary struct {
	Original       transaction.Transaction   `json:"original"`
	Refunds        []transaction.Transaction `json:"refunds"`
	RefundedAmount int64                     `json:"refunded_amount"`
	Remaining      int64                     `json:"remaining"`
}

// RefundHistory lists what has been refunded from a transaction so far.
func (s *Service) RefundHistory(ctx context.Context, actor Actor, transactionID string) (RefundSummary, error) {
	if err := authorize(actor, OpViewLedger); err != nil {
		return RefundSummary{}, err
	}
	original, err := s.engine.Get(ctx, transactionID)
	if err != nil {
		return RefundSummary{}, err
	}
	refunds, err := s.engine.RefundHistory(ctx, original.ID)
	if err != nil {
		return RefundSummary{}, err
	}
	refunded, err := s.engine.RefundedAmount(ctx, original.ID)
	if err != nil {
		return RefundSummary{}, err
	}
	if refunds == nil {
		refunds = []transaction.Transaction{}
	}
	return RefundSummary{
		Original:       original,
		Refunds:        refunds,
		RefundedAmount: refunded,
		Remaining:      original.Amount - refunded,
	}, nil
}

// AuditLogs lists audit entries, newest first.
func (s *Service) AuditLogs(ctx context.Context, actor Actor, filter audit.Filter) ([]audit.Entry, int, error) {
	if err := authorize(actor, OpViewAuditLogs); err != nil {
		return nil, 0, err
	}
	return s.audits.List(ctx, filter)
}

func (s *Service) publish(ctx context.Context, event notification.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event",
			slog.String("kind", event.Kind),
			slog.String("wallet_id", event.WalletID),
			slog.Any("error", err),
		)
	}
}
