package user

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/txn"
	"github.com/bayarin/bayarin/internal/wallet"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	ctx := context.Background()
	ids := identity.NewService(identity.NewMemoryRepository()).WithCost(bcrypt.MinCost)
	wallets := wallet.NewService(wallet.NewMemoryRegistry(), ledger.NewMemoryStore(), txn.NewMemory(), "IDR")

	u, err := ids.Register(ctx, identity.Registration{Email: "dewi@example.com", FullName: "Dewi", Password: "secret123", PIN: "123456"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := wallets.Provision(ctx, u.ID); err != nil {
		t.Fatalf("provision: %v", err)
	}
	return NewService(ids, wallets), u.ID
}

func TestProfile(t *testing.T) {
	svc, uid := newTestService(t)

	p, err := svc.Profile(context.Background(), uid)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Email != "dewi@example.com" || !p.HasPIN {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if len(p.Wallets) != 3 {
		t.Fatalf("expected 3 wallets, got %d", len(p.Wallets))
	}

	if _, err := svc.Profile(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetAndVerifyPIN(t *testing.T) {
	svc, uid := newTestService(t)
	ctx := context.Background()

	if err := svc.SetPIN(ctx, uid, "", "654321"); !errors.Is(err, identity.ErrInvalidPIN) {
		t.Fatalf("expected the current PIN to be required, got %v", err)
	}
	if err := svc.SetPIN(ctx, uid, "123456", "654321"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if err := svc.VerifyPIN(ctx, uid, "654321"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := svc.VerifyPIN(ctx, uid, "123456"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected the old PIN to fail, got %v", err)
	}
}
