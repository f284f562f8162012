// Package audit records administrative actions. Entries are written inside
// the same unit as the change they describe, so an action and its audit
// record commit or roll back together.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an audited admin operation.
type Action string

const (
	ActionFreezeWallet       Action = "freeze_wallet"
	ActionUnfreezeWallet     Action = "unfreeze_wallet"
	ActionRefundTransaction  Action = "refund_transaction"
	ActionReverseTransaction Action = "reverse_transaction"
)

const (
	ResourceWallet      = "wallet"
	ResourceTransaction = "transaction"
)

// Entry is one audit record.
type Entry struct {
	ID           string    `json:"id"`
	ActorID      string    `json:"actor_id"`
	Action       Action    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewEntry stamps an id and creation time.
func NewEntry(actorID string, action Action, resourceType, resourceID, description string) Entry {
	return Entry{
		ID:           uuid.NewString(),
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	ActorID    string
	ResourceID string
	Action     Action
	Limit      int
	Offset     int
}

// Repository stores audit entries. Record joins the unit carried by ctx.
type Repository interface {
	Record(ctx context.Context, entry Entry) error
	// List returns matching entries, newest first, and the total match count.
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
}

func (f Filter) matches(e Entry) bool {
	if f.ActorID != "" && f.ActorID != e.ActorID {
		return false
	}
	if f.ResourceID != "" && f.ResourceID != e.ResourceID {
		return false
	}
	if f.Action != "" && f.Action != e.Action {
		return false
	}
	return true
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
