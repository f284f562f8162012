package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/ledger"
	"github.com/bayarin/bayarin/internal/txn"
)

// ErrNotOwner is returned when a user reads a wallet they do not own.
var ErrNotOwner = apperr.New(apperr.ErrForbidden, "WALLET_FORBIDDEN", "wallet belongs to another user")

// Service exposes wallet provisioning and read operations.
type Service struct {
	registry Registry
	ledger   ledger.Store
	tx       txn.Manager
	currency string
}

// NewService builds a wallet service instance.
func NewService(registry Registry, store ledger.Store, tx txn.Manager, currency string) *Service {
	return &Service{registry: registry, ledger: store, tx: tx, currency: currency}
}

// Provision creates the main, bonus and cashback wallets of a new user in one unit.
func (s *Service) Provision(ctx context.Context, ownerID string) ([]Wallet, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return nil, apperr.Validation("invalid owner id %q", ownerID)
	}

	wallets := make([]Wallet, 0, len(UserTypes))
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		for i, t := range UserTypes {
			w := Wallet{
				ID:       uuid.NewString(),
				OwnerID:  ownerID,
				Type:     t,
				Currency: s.currency,
				Status:   StatusActive,
				// keeps ListByOwner in provisioning order
				CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
				UpdatedAt: now,
			}
			if err := s.registry.Create(ctx, w); err != nil {
				return fmt.Errorf("create %s wallet: %w", t, err)
			}
			wallets = append(wallets, w)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// EnsureClearing returns the platform clearing wallet, creating it on first use.
func (s *Service) EnsureClearing(ctx context.Context) (Wallet, error) {
	w, err := s.registry.FindByOwnerAndType(ctx, SystemOwnerID, TypeClearing)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Wallet{}, err
	}

	now := time.Now().UTC()
	w = Wallet{
		ID:        uuid.NewString(),
		OwnerID:   SystemOwnerID,
		Type:      TypeClearing,
		Currency:  s.currency,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.registry.Create(ctx, w); err != nil {
		if errors.Is(err, ErrAlreadyProvisioned) {
			return s.registry.FindByOwnerAndType(ctx, SystemOwnerID, TypeClearing)
		}
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves a wallet by id.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.registry.Get(ctx, id)
}

// Balance returns the owner's wallet of the given type.
func (s *Service) Balance(ctx context.Context, ownerID string, t Type) (Wallet, error) {
	return s.registry.FindByOwnerAndType(ctx, ownerID, t)
}

// Main returns the owner's main wallet, the default source and target of money movement.
func (s *Service) Main(ctx context.Context, ownerID string) (Wallet, error) {
	return s.registry.FindByOwnerAndType(ctx, ownerID, TypeMain)
}

// All lists every wallet the owner holds.
func (s *Service) All(ctx context.Context, ownerID string) ([]Wallet, error) {
	return s.registry.ListByOwner(ctx, ownerID)
}

// Owned returns the wallet when ownerID owns it.
func (s *Service) Owned(ctx context.Context, ownerID, walletID string) (Wallet, error) {
	w, err := s.registry.Get(ctx, walletID)
	if err != nil {
		return Wallet{}, err
	}
	if w.OwnerID != ownerID {
		return Wallet{}, ErrNotOwner
	}
	return w, nil
}

// History pages through the ledger entries of a wallet the owner holds.
func (s *Service) History(ctx context.Context, ownerID, walletID string, limit, offset int) (ledger.Page, error) {
	if _, err := s.Owned(ctx, ownerID, walletID); err != nil {
		return ledger.Page{}, err
	}
	return s.ledger.EntriesForWallet(ctx, walletID, limit, offset)
}
