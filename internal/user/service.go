// Package user serves the signed-in user's own profile and transaction PIN.
package user

import (
	"context"
	"time"

	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Service reads and updates the caller's own account.
type Service struct {
	ids     *identity.Service
	wallets *wallet.Service
}

// NewService builds a profile service.
func NewService(ids *identity.Service, wallets *wallet.Service) *Service {
	return &Service{ids: ids, wallets: wallets}
}

// Profile is a user together with their wallets.
type Profile struct {
	ID        string
	Email     string
	Phone     string
	FullName  string
	Status    string
	HasPIN    bool
	Wallets   []wallet.Wallet
	CreatedAt time.Time
}

// Profile returns the user's account and wallets.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	u, err := s.ids.User(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	wallets, err := s.wallets.All(ctx, u.ID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Phone:     u.Phone,
		FullName:  u.FullName,
		Status:    u.Status,
		HasPIN:    u.HasPIN(),
		Wallets:   wallets,
		CreatedAt: u.CreatedAt,
	}, nil
}

// SetPIN replaces the transaction PIN after checking the current one.
func (s *Service) SetPIN(ctx context.Context, userID, currentPIN, newPIN string) error {
	return s.ids.SetPIN(ctx, userID, currentPIN, newPIN)
}

// VerifyPIN checks the transaction PIN without moving money.
func (s *Service) VerifyPIN(ctx context.Context, userID, pin string) error {
	return s.ids.VerifyPIN(ctx, userID, pin)
}
