package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/validation"
)

const (
	statusActive = "active"

	minPasswordLength = 8
)

var (
	ErrUserExists      = apperr.New(apperr.ErrValidation, "USER_EXISTS", "email is already registered")
	ErrUserNotFound    = apperr.New(apperr.ErrNotFound, "USER_NOT_FOUND", "user not found")
	ErrAdminExists     = apperr.New(apperr.ErrValidation, "ADMIN_EXISTS", "admin username is taken")
	ErrAdminNotFound   = apperr.New(apperr.ErrNotFound, "ADMIN_NOT_FOUND", "admin not found")
	ErrInvalidLogin    = apperr.New(apperr.ErrUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	ErrInvalidPIN      = apperr.New(apperr.ErrUnauthorized, "INVALID_PIN", "invalid PIN")
	ErrAccountDisabled = apperr.New(apperr.ErrForbidden, "ACCOUNT_DISABLED", "account is disabled")
)

// Service manages user and admin identities.
type Service struct {
	repo Repository
	cost int
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// Register validates the registration and stores a user with hashed
// password and PIN.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.Phone = strings.TrimSpace(reg.Phone)
	reg.FullName = strings.TrimSpace(reg.FullName)
	if err := validation.Struct(reg); err != nil {
		return User{}, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	pinHash, err := bcrypt.GenerateFromPassword([]byte(reg.PIN), s.cost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		Phone:        reg.Phone,
		FullName:     reg.FullName,
		PasswordHash: passwordHash,
		PINHash:      pinHash,
		Status:       statusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, apperr.Storage(err)
	}
	return user, nil
}

// Authenticate verifies an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidLogin
		}
		return User{}, apperr.Storage(err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidLogin
	}
	if user.Status != statusActive {
		return User{}, ErrAccountDisabled
	}
	return user, nil
}

// User returns the user with the given id.
func (s *Service) User(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, apperr.Storage(err)
	}
	return user, nil
}

// VerifyPIN checks the transaction PIN of a user.
func (s *Service) VerifyPIN(ctx context.Context, userID, pin string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return apperr.Storage(err)
	}
	if bcrypt.CompareHashAndPassword(user.PINHash, []byte(pin)) != nil {
		return ErrInvalidPIN
	}
	return nil
}

// SetPIN replaces the transaction PIN. A user who already has a PIN must
// present it.
func (s *Service) SetPIN(ctx context.Context, userID, currentPIN, newPIN string) error {
	if err := validation.Struct(pinChange{PIN: newPIN}); err != nil {
		return err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return apperr.Storage(err)
	}
	if user.HasPIN() && bcrypt.CompareHashAndPassword(user.PINHash, []byte(currentPIN)) != nil {
		return ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPIN), s.cost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePIN(ctx, user.ID, hash); err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// Search finds users whose email, phone or name contains query, newest first.
func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]User, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, 0, apperr.Validation("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	users, total, err := s.repo.Search(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage(err)
	}
	if users == nil {
		users = []User{}
	}
	return users, total, nil
}

// CreateAdmin stores a back-office account with the given role.
func (s *Service) CreateAdmin(ctx context.Context, username, password string, role Role) (Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Admin{}, apperr.Validation("username is required")
	}
	if len(password) < minPasswordLength {
		return Admin{}, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	if !role.Valid() {
		return Admin{}, apperr.Validation("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Admin{}, err
	}
	admin := Admin{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateAdmin(ctx, admin); err != nil {
		return Admin{}, apperr.Storage(err)
	}
	return admin, nil
}

// EnsureAdmin creates the bootstrap super admin unless the username exists.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (Admin, error) {
	admin, err := s.repo.FindAdminByUsername(ctx, username)
	if err == nil {
		return admin, nil
	}
	if !errors.Is(err, ErrAdminNotFound) {
		return Admin{}, apperr.Storage(err)
	}
	return s.CreateAdmin(ctx, username, password, RoleSuperAdmin)
}

// AuthenticateAdmin verifies admin credentials.
func (s *Service) AuthenticateAdmin(ctx context.Context, username, password string) (Admin, error) {
	admin, err := s.repo.FindAdminByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return Admin{}, ErrInvalidLogin
		}
		return Admin{}, apperr.Storage(err)
	}
	if err := bcrypt.CompareHashAndPassword(admin.PasswordHash, []byte(password)); err != nil {
		return Admin{}, ErrInvalidLogin
	}
	return admin, nil
}
