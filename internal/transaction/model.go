// Package transaction implements the engine that moves money between
// wallets. Every operation is idempotent per client key, commits its ledger
// entries, wallet balances and status change as one unit, and follows the
// state machine pending -> success | failed, success -> reversed.
package transaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/bayarin/bayarin/internal/apperr"
)

// Type classifies a transaction.
type Type string

const (
	TypeTopup    Type = "topup"
	TypeTransfer Type = "transfer"
	TypePayment  Type = "payment"
	TypeRefund   Type = "refund"
	TypeReversal Type = "reversal"
)

// Refundable reports whether transactions of this type may be refunded or reversed.
func (t Type) Refundable() bool {
	switch t {
	case TypeTopup, TypeTransfer, TypePayment:
		return true
	}
	return false
}

// Status is a transaction lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusReversed Status = "reversed"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusSuccess, StatusFailed},
	StatusSuccess: {StatusReversed},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	ErrNotFound      = apperr.New(apperr.ErrNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
	ErrStatusChanged = apperr.New(apperr.ErrInvalidTransition, "INVALID_TRANSITION", "transaction status does not allow this change")
	// ErrDuplicateKey reports a second non-failed transaction with the same
	// initiator, type and idempotency key.
	ErrDuplicateKey = apperr.New(apperr.ErrDuplicateRequest, "DUPLICATE_REQUEST", "idempotency key already used")
	// ErrInProgress is returned to a duplicate request whose original has
	// not been recorded yet.
	ErrInProgress = apperr.New(apperr.ErrDuplicateRequest, "REQUEST_IN_PROGRESS", "a request with this idempotency key is still being processed")
)

// Transaction is the record of one money movement. Optional references are
// empty strings when absent.
type Transaction struct {
	ID                string     `json:"id"`
	IdempotencyKey    string     `json:"idempotency_key"`
	InitiatorID       string     `json:"initiator_id"`
	Type              Type       `json:"type"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Status            Status     `json:"status"`
	FromWalletID      string     `json:"from_wallet_id,omitempty"`
	ToWalletID        string     `json:"to_wallet_id,omitempty"`
	ReferenceID       string     `json:"reference_id,omitempty"`
	ExternalReference string     `json:"external_reference,omitempty"`
	Description       string     `json:"description"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Involves reports whether the transaction moved money in or out of walletID.
func (t Transaction) Involves(walletID string) bool {
	return walletID != "" && (t.FromWalletID == walletID || t.ToWalletID == walletID)
}

// shortID is the first block of a uuid, used in human readable descriptions.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}
