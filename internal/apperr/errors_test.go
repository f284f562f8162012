package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodedErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("load wallet: %w", New(ErrNotFound, "WALLET_NOT_FOUND", "wallet not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped error to match ErrNotFound")
	}
	var coded *Error
	if !errors.As(err, &coded) || coded.Code() != "WALLET_NOT_FOUND" {
		t.Fatalf("expected WALLET_NOT_FOUND code, got %v", err)
	}
}

func TestStorageKeepsTaxonomyErrors(t *testing.T) {
	if err := Storage(ErrConflict); err != ErrConflict {
		t.Fatalf("expected conflict to pass through, got %v", err)
	}

	cause := errors.New("connection reset")
	err := Storage(cause)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("expected storage failure wrapping cause, got %v", err)
	}
	if err.Error() != "storage failure: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestValidationFormatsMessage(t *testing.T) {
	err := Validation("amount must be greater than %d", 0)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation kind")
	}
	if err.Error() != "amount must be greater than 0" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
