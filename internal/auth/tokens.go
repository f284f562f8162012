package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/identity"
)

const (
	userIssuer    = "bayarin"
	userAudience  = "bayarin-api"
	adminIssuer   = "bayarin-admin"
	adminAudience = "bayarin-admin-api"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = apperr.New(apperr.ErrUnauthorized, "INVALID_TOKEN", "invalid or expired token")

// UserClaims identify a wallet owner.
type UserClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AdminClaims identify a back-office operator and their role.
type AdminClaims struct {
	AdminID  string        `json:"admin_id"`
	Username string        `json:"username"`
	Role     identity.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens. User and admin tokens use
// different secrets, issuers and audiences so one can never stand in for
// the other.
type TokenManager struct {
	userSecret  []byte
	adminSecret []byte
	ttl         time.Duration
	now         func() time.Time
}

// NewTokenManager builds a TokenManager.
func NewTokenManager(userSecret, adminSecret string, ttl time.Duration) *TokenManager {
	return &TokenManager{userSecret: []byte(userSecret), adminSecret: []byte(adminSecret), ttl: ttl, now: time.Now}
}

// TTL reports how long issued tokens stay valid.
func (m *TokenManager) TTL() time.Duration { return m.ttl }

// IssueUser signs a user token.
func (m *TokenManager) IssueUser(user identity.User) (string, error) {
	claims := UserClaims{
		UserID:           user.ID,
		Email:            user.Email,
		RegisteredClaims: m.registered(user.ID, userIssuer, userAudience),
	}
	return m.sign(claims, m.userSecret)
}

// IssueAdmin signs an admin token.
func (m *TokenManager) IssueAdmin(admin identity.Admin) (string, error) {
	claims := AdminClaims{
		AdminID:          admin.ID,
		Username:         admin.Username,
		Role:             admin.Role,
		RegisteredClaims: m.registered(admin.ID, adminIssuer, adminAudience),
	}
	return m.sign(claims, m.adminSecret)
}

// ParseUser verifies a user token.
func (m *TokenManager) ParseUser(raw string) (*UserClaims, error) {
	claims := new(UserClaims)
	if err := m.parse(raw, claims, m.userSecret, userIssuer, userAudience); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseAdmin verifies an admin token.
func (m *TokenManager) ParseAdmin(raw string) (*AdminClaims, error) {
	claims := new(AdminClaims)
	if err := m.parse(raw, claims, m.adminSecret, adminIssuer, adminAudience); err != nil {
		return nil, err
	}
	if claims.AdminID == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *TokenManager) registered(subject, issuer, audience string) jwt.RegisteredClaims {
	now := m.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
}

func (m *TokenManager) sign(claims jwt.Claims, secret []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) parse(raw string, claims jwt.Claims, secret []byte, issuer, audience string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(m.now),
	)
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperr.New(apperr.ErrUnauthorized, "TOKEN_EXPIRED", "token has expired")
		}
		return ErrInvalidToken
	}
	return nil
}
