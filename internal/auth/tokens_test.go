package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/bayarin/bayarin/internal/apperr"
	"github.com/bayarin/bayarin/internal/identity"
)

func TestUserTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("user-secret", "admin-secret", time.Hour)

	token, err := tm.IssueUser(identity.User{ID: "u-1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := tm.ParseUser(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u-1" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokensDoNotCrossNamespaces(t *testing.T) {
	tm := NewTokenManager("user-secret", "admin-secret", time.Hour)

	userToken, err := tm.IssueUser(identity.User{ID: "u-1"})
	if err != nil {
		t.Fatalf("issue user: %v", err)
	}
	adminToken, err := tm.IssueAdmin(identity.Admin{ID: "a-1", Username: "root", Role: identity.RoleSuperAdmin})
	if err != nil {
		t.Fatalf("issue admin: %v", err)
	}

	if _, err := tm.ParseAdmin(userToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("user token accepted as admin: %v", err)
	}
	if _, err := tm.ParseUser(adminToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("admin token accepted as user: %v", err)
	}

	claims, err := tm.ParseAdmin(adminToken)
	if err != nil {
		t.Fatalf("parse admin: %v", err)
	}
	if claims.Role != identity.RoleSuperAdmin {
		t.Fatalf("expected super_admin, got %s", claims.Role)
	}
}

func TestExpiredToken(t *testing.T) {
	tm := NewTokenManager("user-secret", "admin-secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	tm.now = func() time.Time { return issued }

	token, err := tm.IssueUser(identity.User{ID: "u-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tm.now = time.Now

	_, err = tm.ParseUser(token)
	var coded *apperr.Error
	if !errors.As(err, &coded) || coded.Code() != "TOKEN_EXPIRED" {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}
}

func TestTamperedToken(t *testing.T) {
	tm := NewTokenManager("user-secret", "admin-secret", time.Hour)
	other := NewTokenManager("other-secret", "admin-secret", time.Hour)

	token, err := other.IssueUser(identity.User{ID: "u-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := tm.ParseUser(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
