// Package apperr defines the error taxonomy shared by the ledger, wallet,
// transaction and admin packages. Every error returned across a package
// boundary either is one of the sentinel kinds below or wraps one, so the
// HTTP layer can map it with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports malformed input. It is never retried.
	ErrValidation = errors.New("validation error")
	// ErrInsufficientBalance reports a debit larger than the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrWalletNotActive reports a balance change against a frozen or closed wallet.
	ErrWalletNotActive = errors.New("wallet not active")
	// ErrDuplicateRequest reports an idempotency key that was already used.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrConflict reports a lost compare-and-swap race. Callers retry it.
	ErrConflict = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	// ErrStorage reports a failure of the underlying store.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidTransition reports a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Error carries a stable machine-readable code next to its kind.
type Error struct {
	kind  error
	code  string
	msg   string
	cause error
}

// New builds a coded error of the given kind.
func New(kind error, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Code returns the stable error code, e.g. WALLET_NOT_FOUND.
func (e *Error) Code() string { return e.code }

// Message returns the message without the wrapped cause.
func (e *Error) Message() string { return e.msg }

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Validation formats a VALIDATION_ERROR.
func Validation(format string, args ...any) error {
	return &Error{kind: ErrValidation, code: "VALIDATION_ERROR", msg: fmt.Sprintf(format, args...)}
}

// Storage wraps an infrastructure error as a STORAGE_FAILURE. Errors that
// already belong to the taxonomy are returned unchanged.
func Storage(err error) error {
	if err == nil || IsKnown(err) {
		return err
	}
	return &Error{kind: ErrStorage, code: "STORAGE_FAILURE", msg: "storage failure", cause: err}
}

// IsKnown reports whether err wraps one of the sentinel kinds.
func IsKnown(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

var kinds = []error{
	ErrValidation,
	ErrInsufficientBalance,
	ErrWalletNotActive,
	ErrDuplicateRequest,
	ErrConflict,
	ErrUnauthorized,
	ErrForbidden,
	ErrNotFound,
	ErrStorage,
	ErrInvalidTransition,
}
