package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/txn"
)

func newWallet(t *testing.T, r Registry, typ Type) Wallet {
	t.Helper()
	now := time.Now().UTC()
	w := Wallet{
		ID: uuid.NewString(), OwnerID: uuid.NewString(), Type: typ, Currency: "IDR",
		Status: StatusActive, CreatedAt: now, UpdatedAt: now,
	}
	if err := r.Create(context.Background(), w); err != nil {
		t.Fatalf("create: %v", err)
	}
	return w
}

func TestAdjustBalanceCompareAndSwap(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	w := newWallet(t, r, TypeMain)

	updated, err := r.AdjustBalance(ctx, w.ID, 500, 0)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if updated.Balance != 500 {
		t.Fatalf("balance = %d, want 500", updated.Balance)
	}

	if _, err := r.AdjustBalance(ctx, w.ID, 100, 0); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale expected balance must conflict, got %v", err)
	}
	if _, err := r.AdjustBalance(ctx, w.ID, -600, 500); !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if _, err := r.AdjustBalance(ctx, uuid.NewString(), 1, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClearingWalletMayGoNegative(t *testing.T) {
	r := NewMemoryRegistry()
	w := newWallet(t, r, TypeClearing)
	updated, err := r.AdjustBalance(context.Background(), w.ID, -1_000_000, 0)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if updated.Balance != -1_000_000 {
		t.Fatalf("balance = %d", updated.Balance)
	}
}

func TestFrozenWalletRejectsAdjustments(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	w := newWallet(t, r, TypeMain)

	frozen, err := r.SetStatus(ctx, w.ID, StatusFrozen, "review", "admin-1")
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if frozen.StatusReason != "review" {
		t.Fatalf("reason = %q", frozen.StatusReason)
	}
	if _, err := r.AdjustBalance(ctx, w.ID, 10, 0); !errors.Is(err, apperr.ErrWalletNotActive) {
		t.Fatalf("expected wallet not active, got %v", err)
	}

	if _, err := r.SetStatus(ctx, w.ID, StatusClosed, "closed", "admin-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := r.SetStatus(ctx, w.ID, StatusActive, "reopen", "admin-1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed wallets must stay closed, got %v", err)
	}
	if _, err := r.SetStatus(ctx, w.ID, Status("melted"), "", "admin-1"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown status must be rejected, got %v", err)
	}
}

func TestRollbackRestoresBalance(t *testing.T) {
	r := NewMemoryRegistry()
	tx := txn.NewMemory()
	w := newWallet(t, r, TypeMain)

	boom := errors.New("boom")
	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		if _, err := r.AdjustBalance(ctx, w.ID, 700, 0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := r.Get(context.Background(), w.ID)
	if got.Balance != 0 {
		t.Fatalf("balance after rollback = %d, want 0", got.Balance)
	}
}
