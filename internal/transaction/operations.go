package transaction

import (
	"context"
	"strings"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/wallet"
)

const maxKeyLength = 100

// TopupInput funds a user wallet from a payment channel. WalletID defaults to
// the user's main wallet.
type TopupInput struct {
	UserID         string
	WalletID       string
	Amount         int64
	ChannelCode    string
	IdempotencyKey string
}

// TransferInput moves money between two wallets. The initiator must own the
// source wallet.
type TransferInput struct {
	UserID         string
	FromWalletID   string
	ToWalletID     string
	Amount         int64
	Description    string
	PIN            string
	IdempotencyKey string
}

func validateMovement(amount int64, key string) error {
	if amount <= 0 {
		return apperr.Validation("amount must be greater than zero")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return apperr.Validation("idempotency key is required")
	}
	if len(key) > maxKeyLength {
		return apperr.Validation("idempotency key must be at most %d characters", maxKeyLength)
	}
	return nil
}

// Topup debits the clearing wallet and credits the user's wallet.
func (e *Engine) Topup(ctx context.Context, in TopupInput) (Result, error) {
	if err := validateMovement(in.Amount, in.IdempotencyKey); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(in.ChannelCode) == "" {
		return Result{}, apperr.Validation("channel code is required")
	}

	target, err := e.userWallet(ctx, in.UserID, in.WalletID)
	if err != nil {
		return Result{}, err
	}

	return e.execute(ctx, request{
		typ:         TypeTopup,
		initiatorID: in.UserID,
		key:         in.IdempotencyKey,
		build: func(ctx context.Context) (plan, error) {
			auth, err := e.channels.Authorize(ctx, in.ChannelCode, in.Amount)
			if err != nil {
				return plan{}, err
			}
			description := "Topup via " + auth.Channel.Code
			return plan{
				tx: Transaction{
					Amount:            in.Amount,
					FromWalletID:      e.clearing,
					ToWalletID:        target.ID,
					ExternalReference: auth.Reference,
					Description:       description,
				},
				legs: []leg{
					{walletID: e.clearing, entryType: ledger.Debit, amount: in.Amount, description: description},
					{walletID: target.ID, entryType: ledger.Credit, amount: in.Amount, description: description},
				},
			}, nil
		},
	})
}

// Transfer debits the initiator's wallet and credits the destination.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (Result, error) {
	if err := validateMovement(in.Amount, in.IdempotencyKey); err != nil {
		return Result{}, err
	}
	if in.FromWalletID == in.ToWalletID {
		return Result{}, apperr.Validation("cannot transfer to the same wallet")
	}

	from, err := e.userWallet(ctx, in.UserID, in.FromWalletID)
	if err != nil {
		return Result{}, err
	}
	to, err := e.wallets.Get(ctx, in.ToWalletID)
	if err != nil {
		return Result{}, err
	}
	if to.Type == wallet.TypeClearing {
		return Result{}, wallet.ErrNotFound
	}
	if err := e.pins.VerifyPIN(ctx, in.UserID, in.PIN); err != nil {
		return Result{}, err
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "Transfer to user"
	}

	return e.execute(ctx, request{
		typ:         TypeTransfer,
		initiatorID: in.UserID,
		key:         in.IdempotencyKey,
		build: func(context.Context) (plan, error) {
			return plan{
				tx: Transaction{
					Amount:       in.Amount,
					FromWalletID: from.ID,
					ToWalletID:   to.ID,
					Description:  description,
				},
				legs: []leg{
					{walletID: from.ID, entryType: ledger.Debit, amount: in.Amount, description: "Transfer out: " + description},
					{walletID: to.ID, entryType: ledger.Credit, amount: in.Amount, description: "Transfer in: " + description},
				},
			}, nil
		},
	})
}

// userWallet resolves walletID, or the main wallet when empty, and checks
// that userID owns it.
func (e *Engine) userWallet(ctx context.Context, userID, walletID string) (wallet.Wallet, error) {
	if userID == "" {
		return wallet.Wallet{}, apperr.New(apperr.ErrUnauthorized, "UNAUTHORIZED", "missing initiator")
	}
	if walletID == "" {
		return e.wallets.FindByOwnerAndType(ctx, userID, wallet.TypeMain)
	}
	if !validID(walletID) {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	w, err := e.wallets.Get(ctx, walletID)
	if err != nil {
		return wallet.Wallet{}, err
	}
	if w.OwnerID != userID {
		return wallet.Wallet{}, wallet.ErrNotOwner
	}
	return w, nil
}
