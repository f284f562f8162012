package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/bayarin/bayarin/internal/apperr"
)

type transferRequest struct {
	ToUserID string `json:"to_user_id" validate:"required,uuid"`
	Amount   int64  `json:"amount" validate:"gt=0"`
	PIN      string `json:"pin" validate:"required,len=6,numeric"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(transferRequest{ToUserID: "not-a-uuid", Amount: 0, PIN: "12ab56"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"to_user_id must be a valid id", "amount must be greater than 0", "pin must contain only digits"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %q", want, msg)
		}
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	req := transferRequest{ToUserID: "6f1c1bb8-3f55-4d38-9c1f-1d1c0b6b6a11", Amount: 10_000, PIN: "123456"}
	if err := Struct(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
