package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bayarin/bayarin/internal/idempotency"
	"github.com/bayarin/bayarin/internal/ledger"
)

func TestSweepSettlesStalePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, aliceMain := h.user(t)
	old := time.Now().UTC().Add(-time.Hour)

	// crashed after the insert, before anything was written
	orphan := Transaction{
		ID: uuid.NewString(), IdempotencyKey: "orphan", InitiatorID: alice, Type: TypeTopup,
		Amount: 10_000, Currency: "IDR", Status: StatusPending,
		FromWalletID: h.clearing.ID, ToWalletID: aliceMain.ID, CreatedAt: old, UpdatedAt: old,
	}
	// crashed after the entries were durable, before the status moved
	durable := orphan
	durable.ID, durable.IdempotencyKey = uuid.NewString(), "durable"
	// still within the timeout
	fresh := orphan
	fresh.ID, fresh.IdempotencyKey = uuid.NewString(), "fresh"
	fresh.CreatedAt = time.Now().UTC()

	orphanKey := idempotency.Scope(string(TypeTopup), alice, "orphan")
	if err := h.tracker.Reserve(ctx, orphanKey, orphan.ID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	for _, tx := range []Transaction{orphan, durable, fresh} {
		if err := h.repo.Create(ctx, tx); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := h.ledger.AppendEntries(ctx, []ledger.Entry{
		{ID: uuid.NewString(), TransactionID: durable.ID, WalletID: h.clearing.ID, Type: ledger.Debit,
			Amount: 10_000, BalanceBefore: 0, BalanceAfter: -10_000},
		{ID: uuid.NewString(), TransactionID: durable.ID, WalletID: aliceMain.ID, Type: ledger.Credit,
			Amount: 10_000, BalanceBefore: 0, BalanceAfter: 10_000},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	result, err := NewReconciler(h.engine, 5*time.Minute).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Checked != 2 || result.Completed != 1 || result.Failed != 1 {
		t.Fatalf("unexpected sweep result %+v", result)
	}

	if got, _ := h.repo.Get(ctx, orphan.ID); got.Status != StatusFailed || got.FailureReason == "" {
		t.Fatalf("orphan = %+v, want failed with a reason", got)
	}
	if got, _ := h.repo.Get(ctx, durable.ID); got.Status != StatusSuccess || got.CompletedAt == nil {
		t.Fatalf("durable = %+v, want success", got)
	}
	if got, _ := h.repo.Get(ctx, fresh.ID); got.Status != StatusPending {
		t.Fatalf("fresh = %s, want pending", got.Status)
	}
	if _, err := h.tracker.Lookup(ctx, orphanKey); !errors.Is(err, idempotency.ErrNotFound) {
		t.Fatalf("orphan key must be released, got %v", err)
	}

	again, err := NewReconciler(h.engine, 5*time.Minute).Sweep(ctx)
	if err != nil || again.Checked != 0 {
		t.Fatalf("second sweep = %+v (%v), want nothing to do", again, err)
	}
}
