package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/txn"
	"github.com/bayarin/bayarin/internal/wallet"
)

func newTestService(t *testing.T) (*Service, wallet.Registry) {
	t.Helper()
	tx := txn.NewMemory()
	registry := wallet.NewMemoryRegistry()
	ids := identity.NewService(identity.NewMemoryRepository()).WithCost(bcrypt.MinCost)
	wallets := wallet.NewService(registry, ledger.NewMemoryStore(), tx, "IDR")
	tokens := NewTokenManager("user-secret", "admin-secret", time.Hour)
	return NewService(ids, wallets, tx, tokens), registry
}

func TestRegisterProvisionsWallets(t *testing.T) {
	svc, registry := newTestService(t)
	ctx := context.Background()

	user, wallets, err := svc.Register(ctx, identity.Registration{Email: "a@example.com", FullName: "A", Password: "secret123", PIN: "123456"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(wallets) != 3 {
		t.Fatalf("expected 3 wallets, got %d", len(wallets))
	}
	stored, err := registry.ListByOwner(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, want := range []wallet.Type{wallet.TypeMain, wallet.TypeBonus, wallet.TypeCashback} {
		if stored[i].Type != want || stored[i].Balance != 0 || stored[i].Status != wallet.StatusActive {
			t.Fatalf("wallet %d: unexpected %+v", i, stored[i])
		}
	}
}

func TestRegisterFailureLeavesNoUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	reg := identity.Registration{Email: "a@example.com", FullName: "A", Password: "secret123", PIN: "123456"}

	if _, _, err := svc.Register(ctx, reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Register(ctx, reg); !errors.Is(err, identity.ErrUserExists) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, identity.Registration{Email: "a@example.com", FullName: "A", Password: "secret123", PIN: "123456"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, session, err := svc.Login(ctx, "a@example.com", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.tokens.ParseUser(session.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, claims.UserID)
	}
	if session.ExpiresAt.Before(time.Now().Add(59 * time.Minute)) {
		t.Fatalf("unexpected expires_at %s", session.ExpiresAt)
	}
}
