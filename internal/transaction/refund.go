package transaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/notification"
)

// CommitHook runs inside the atomic unit of a refund or reversal, after its
// entries are written. An error rolls the whole unit back.
type CommitHook func(ctx context.Context, committed, original Transaction) error

// RefundInput returns part or all of a successful transaction. A zero Amount
// refunds whatever has not been refunded yet.
type RefundInput struct {
	ActorID               string
	OriginalTransactionID string
	Amount                int64
	Reason                string
	IdempotencyKey        string
	OnCommit              CommitHook
}

// ReverseInput undoes the unrefunded remainder of a transaction and marks it
// reversed.
type ReverseInput struct {
	ActorID               string
	OriginalTransactionID string
	Reason                string
	IdempotencyKey        string
	OnCommit              CommitHook
}

func validateReversal(actorID, originalID, reason, key string) error {
	if actorID == "" {
		return apperr.New(apperr.ErrUnauthorized, "UNAUTHORIZED", "missing actor")
	}
	if strings.TrimSpace(reason) == "" {
		return apperr.Validation("reason is required")
	}
	if !validID(originalID) {
		return ErrNotFound
	}
	return validateMovement(1, key)
}

// Refund moves money back along the original transaction's path.
func (e *Engine) Refund(ctx context.Context, in RefundInput) (Result, error) {
	if in.Amount < 0 {
		return Result{}, apperr.Validation("refund amount must not be negative")
	}
	if err := validateReversal(in.ActorID, in.OriginalTransactionID, in.Reason, in.IdempotencyKey); err != nil {
		return Result{}, err
	}

	return e.execute(ctx, request{
		typ:         TypeRefund,
		initiatorID: in.ActorID,
		key:         in.IdempotencyKey,
		build: func(ctx context.Context) (plan, error) {
			original, remaining, err := e.refundable(ctx, in.OriginalTransactionID)
			if err != nil {
				return plan{}, err
			}
			amount := in.Amount
			if amount == 0 {
				amount = remaining
			}
			if amount > remaining {
				return plan{}, apperr.Validation("refund amount %d exceeds refundable amount %d", amount, remaining)
			}

			description := fmt.Sprintf("Refund for transaction %s: %s", shortID(original.ID), in.Reason)
			p := e.offset(original, amount, description)
			if in.OnCommit != nil {
				p.hooks = append(p.hooks, func(ctx context.Context, committed Transaction) error {
					return in.OnCommit(ctx, committed, original)
				})
			}
			return p, nil
		},
	})
}

// Reverse refunds the remainder and moves the original to reversed in the
// same unit.
func (e *Engine) Reverse(ctx context.Context, in ReverseInput) (Result, error) {
	if err := validateReversal(in.ActorID, in.OriginalTransactionID, in.Reason, in.IdempotencyKey); err != nil {
		return Result{}, err
	}

	return e.execute(ctx, request{
		typ:         TypeReversal,
		initiatorID: in.ActorID,
		key:         in.IdempotencyKey,
		build: func(ctx context.Context) (plan, error) {
			original, remaining, err := e.refundable(ctx, in.OriginalTransactionID)
			if err != nil {
				return plan{}, err
			}

			description := fmt.Sprintf("Reversal of transaction %s: %s", shortID(original.ID), in.Reason)
			p := e.offset(original, remaining, description)

			var reversed Transaction
			p.hooks = append(p.hooks, func(ctx context.Context, _ Transaction) error {
				var err error
				reversed, err = e.repo.UpdateStatus(ctx, original.ID, StatusSuccess, StatusReversed, "")
				return err
			})
			if in.OnCommit != nil {
				p.hooks = append(p.hooks, func(ctx context.Context, committed Transaction) error {
					return in.OnCommit(ctx, committed, original)
				})
			}
			p.after = func(ctx context.Context, committed Transaction) {
				e.publish(ctx, notification.Event{
					Kind:          notification.KindTransactionReversed,
					TransactionID: reversed.ID,
					Type:          string(reversed.Type),
					Status:        string(reversed.Status),
					Amount:        reversed.Amount,
					FromWalletID:  reversed.FromWalletID,
					ToWalletID:    reversed.ToWalletID,
					ActorID:       committed.InitiatorID,
					Reason:        in.Reason,
					OccurredAt:    reversed.UpdatedAt,
				})
			}
			return p, nil
		},
	})
}

// refundable loads the original and the amount still open for refund.
func (e *Engine) refundable(ctx context.Context, id string) (Transaction, int64, error) {
	original, err := e.repo.Get(ctx, id)
	if err != nil {
		return Transaction{}, 0, err
	}
	switch {
	case original.Status == StatusReversed:
		return Transaction{}, 0, apperr.New(apperr.ErrInvalidTransition, "INVALID_TRANSITION", "transaction has already been reversed")
	case original.Status != StatusSuccess:
		return Transaction{}, 0, apperr.New(apperr.ErrInvalidTransition, "INVALID_TRANSITION",
			fmt.Sprintf("only successful transactions can be refunded, status is %s", original.Status))
	case !original.Type.Refundable():
		return Transaction{}, 0, apperr.Validation("%s transactions cannot be refunded", original.Type)
	}

	refunded, err := e.repo.RefundedAmount(ctx, original.ID)
	if err != nil {
		return Transaction{}, 0, err
	}
	remaining := original.Amount - refunded
	if remaining <= 0 {
		return Transaction{}, 0, apperr.Validation("transaction has already been fully refunded")
	}
	return original, remaining, nil
}

// offset builds the plan that moves amount from the original's destination
// back to its source. The guard rechecks the bound under a row lock on the
// original so concurrent refunds cannot overshoot it.
func (e *Engine) offset(original Transaction, amount int64, description string) plan {
	return plan{
		tx: Transaction{
			Amount:       amount,
			FromWalletID: original.ToWalletID,
			ToWalletID:   original.FromWalletID,
			ReferenceID:  original.ID,
			Description:  description,
		},
		legs: []leg{
			{walletID: original.ToWalletID, entryType: ledger.Debit, amount: amount, description: description},
			{walletID: original.FromWalletID, entryType: ledger.Credit, amount: amount, description: description},
		},
		guard: func(ctx context.Context) error {
			locked, err := e.repo.GetForUpdate(ctx, original.ID)
			if err != nil {
				return err
			}
			if locked.Status != StatusSuccess {
				return ErrStatusChanged
			}
			refunded, err := e.repo.RefundedAmount(ctx, original.ID)
			if err != nil {
				return err
			}
			if refunded+amount > locked.Amount {
				return apperr.Validation("refund amount %d exceeds refundable amount %d", amount, locked.Amount-refunded)
			}
			return nil
		},
	}
}

