package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/txn"
)

func newService() *Service {
	return NewService(NewMemoryRegistry(), ledger.NewMemoryStore(), txn.NewMemory(), "IDR")
}

func TestProvisionCreatesUserWallets(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner := uuid.NewString()

	wallets, err := svc.Provision(ctx, owner)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if len(wallets) != 3 {
		t.Fatalf("expected 3 wallets, got %d", len(wallets))
	}
	for i, typ := range UserTypes {
		if wallets[i].Type != typ || wallets[i].Balance != 0 || !wallets[i].IsActive() {
			t.Fatalf("unexpected wallet %+v", wallets[i])
		}
	}

	all, err := svc.All(ctx, owner)
	if err != nil || len(all) != 3 || all[0].Type != TypeMain {
		t.Fatalf("all = %+v (%v)", all, err)
	}

	// a second provisioning must not leave partial wallets behind
	if _, err := svc.Provision(ctx, owner); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected duplicate provisioning to fail, got %v", err)
	}
	all, _ = svc.All(ctx, owner)
	if len(all) != 3 {
		t.Fatalf("expected 3 wallets after failed provisioning, got %d", len(all))
	}

	if _, err := svc.Provision(ctx, "not-a-uuid"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnsureClearingIsIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	first, err := svc.EnsureClearing(ctx)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := svc.EnsureClearing(ctx)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first.ID != second.ID || !first.AllowsOverdraft() {
		t.Fatalf("unexpected clearing wallets %+v %+v", first, second)
	}
}

func TestOwnedAndHistory(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner, stranger := uuid.NewString(), uuid.NewString()
	wallets, err := svc.Provision(ctx, owner)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if _, err := svc.Owned(ctx, stranger, wallets[0].ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	page, err := svc.History(ctx, owner, wallets[0].ID, 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Total != 0 || len(page.Entries) != 0 {
		t.Fatalf("expected an empty history, got %+v", page)
	}

	bonus, err := svc.Balance(ctx, owner, TypeBonus)
	if err != nil || bonus.ID != wallets[1].ID {
		t.Fatalf("bonus wallet = %+v (%v)", bonus, err)
	}
}
