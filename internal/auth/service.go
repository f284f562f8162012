package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/bayarin/bayarin/internal/identity"
	"github.com/bayarin/bayarin/internal/txn"
	"github.com/bayarin/bayarin/internal/wallet"
)

// Service registers users and exchanges credentials for tokens.
type Service struct {
	ids     *identity.Service
	wallets *wallet.Service
	tx      txn.Manager
	tokens  *TokenManager
}

func NewService(ids *identity.Service, wallets *wallet.Service, tx txn.Manager, tokens *TokenManager) *Service {
	return &Service{ids: ids, wallets: wallets, tx: tx, tokens: tokens}
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Register creates the user and their main, bonus and cashback wallets in
// one unit.
func (s *Service) Register(ctx context.Context, reg identity.Registration) (identity.User, []wallet.Wallet, error) {
	var (
		user    identity.User
		wallets []wallet.Wallet
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if user, err = s.ids.Register(ctx, reg); err != nil {
			return err
		}
		if wallets, err = s.wallets.Provision(ctx, user.ID); err != nil {
			return fmt.Errorf("provision wallets: %w", err)
		}
		return nil
	})
	if err != nil {
		return identity.User{}, nil, err
	}
	return user, wallets, nil
}

// Login validates user credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (identity.User, Session, error) {
	user, err := s.ids.Authenticate(ctx, email, password)
	if err != nil {
		return identity.User{}, Session{}, err
	}
	token, err := s.tokens.IssueUser(user)
	if err != nil {
		return identity.User{}, Session{}, err
	}
	return user, Session{Token: token, ExpiresAt: time.Now().Add(s.tokens.TTL()).UTC()}, nil
}

// AdminLogin validates admin credentials and issues an admin token.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (identity.Admin, Session, error) {
	admin, err := s.ids.AuthenticateAdmin(ctx, username, password)
	if err != nil {
		return identity.Admin{}, Session{}, err
	}
	token, err := s.tokens.IssueAdmin(admin)
	if err != nil {
		return identity.Admin{}, Session{}, err
	}
	return admin, Session{Token: token, ExpiresAt: time.Now().Add(s.tokens.TTL()).UTC()}, nil
}
