package wallet

import "time"

// Type classifies a wallet. Clearing wallets belong to the platform and are
// never shown to users.
type Type string

const (
	TypeMain     Type = "main"
	TypeBonus    Type = "bonus"
	TypeCashback Type = "cashback"
	TypeClearing Type = "clearing"
)

// UserTypes are provisioned for every registered user.
var UserTypes = []Type{TypeMain, TypeBonus, TypeCashback}

// Status is the lifecycle state of a wallet.
type Status string

const (
	StatusActive Status = "active"
	StatusFrozen Status = "frozen"
	StatusClosed Status = "closed"
)

// SystemOwnerID owns the platform clearing wallet.
const SystemOwnerID = "00000000-0000-0000-0000-000000000000"

// Wallet is a stored-value account. Balance is a cache of the ledger and is
// only changed through Registry.AdjustBalance.
type Wallet struct {
	ID           string
	OwnerID      string
	Type         Type
	Balance      int64
	Currency     string
	Status       Status
	StatusReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsActive reports whether the wallet accepts balance changes.
func (w Wallet) IsActive() bool {
	return w.Status == StatusActive
}

// AllowsOverdraft reports whether the balance may go below zero.
func (w Wallet) AllowsOverdraft() bool {
	return w.Type == TypeClearing
}

// ParseType validates a wallet type coming from a client. Clearing is not a
// user-facing type.
func ParseType(raw string) (Type, bool) {
	for _, t := range UserTypes {
		if string(t) == raw {
			return t, true
		}
	}
	return "", false
}
