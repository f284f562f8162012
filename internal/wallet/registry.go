package wallet

import (
	"context"

	"github.com/bayarin/bayarin/internal/apperr"
)

var (
	ErrNotFound           = apperr.New(apperr.ErrNotFound, "WALLET_NOT_FOUND", "wallet not found")
	ErrNotActive          = apperr.New(apperr.ErrWalletNotActive, "WALLET_NOT_ACTIVE", "wallet is not active")
	ErrBalanceChanged     = apperr.New(apperr.ErrConflict, "BALANCE_CHANGED", "wallet balance changed concurrently")
	ErrInsufficient       = apperr.New(apperr.ErrInsufficientBalance, "INSUFFICIENT_BALANCE", "insufficient balance")
	ErrClosed             = apperr.New(apperr.ErrInvalidTransition, "WALLET_CLOSED", "closed wallets cannot change status")
	ErrAlreadyProvisioned = apperr.New(apperr.ErrValidation, "WALLET_EXISTS", "wallet already exists")
)

// Registry stores wallet identity, status and the cached balance. Writes made
// with a context carrying a txn unit join that unit.
type Registry interface {
	Create(ctx context.Context, w Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	// GetForUpdate reads the wallet and locks it until the surrounding unit
	// commits.
	GetForUpdate(ctx context.Context, id string) (Wallet, error)
	FindByOwnerAndType(ctx context.Context, ownerID string, t Type) (Wallet, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Wallet, error)
	// AdjustBalance adds delta when the stored balance still equals
	// expectedPrior. A moved balance yields ErrBalanceChanged; a frozen or
	// closed wallet yields ErrNotActive.
	AdjustBalance(ctx context.Context, id string, delta, expectedPrior int64) (Wallet, error)
	// SetStatus moves the wallet to status. Setting the current status again
	// returns the wallet unchanged; leaving closed yields ErrClosed.
	SetStatus(ctx context.Context, id string, status Status, reason, actorID string) (Wallet, error)
}

func checkTransition(from, to Status) error {
	switch to {
	case StatusActive, StatusFrozen, StatusClosed:
	default:
		return apperr.Validation("unknown wallet status %q", to)
	}
	if from == StatusClosed && to != StatusClosed {
		return ErrClosed
	}
	return nil
}
