// Package idempotency guarantees at-most-once execution per client-supplied
// key. A key is reserved before any money moves, completed with the
// serialized result once the transaction commits, and released when the
// attempt fails so the client may retry.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bayarin/bayarin/internal/apperr"
)

// State of a tracked key.
type State string

const (
	StateReserved  State = "reserved"
	StateCompleted State = "completed"
)

var (
	// ErrNotFound is returned by Lookup for unknown or expired keys.
	ErrNotFound = apperr.New(apperr.ErrNotFound, "IDEMPOTENCY_KEY_NOT_FOUND", "idempotency key not found")
	// ErrNotOwner is returned when a key is completed or released by a
	// transaction other than the one that reserved it.
	ErrNotOwner = errors.New("idempotency key held by another transaction")
	// ErrCompleted is returned when releasing a completed key.
	ErrCompleted = errors.New("idempotency key already completed")
)

// Record is the stored state of a key.
type Record struct {
	TransactionID string    `json:"transaction_id"`
	State         State     `json:"state"`
	Result        []byte    `json:"result,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// AlreadyExistsError reports a key that is already reserved or completed.
// It unwraps to apperr.ErrDuplicateRequest.
type AlreadyExistsError struct {
	Key           string
	TransactionID string
	State         State
	Result        []byte
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("idempotency key %q already %s by transaction %s", e.Key, e.State, e.TransactionID)
}

func (e *AlreadyExistsError) Unwrap() error { return apperr.ErrDuplicateRequest }

// Completed reports whether the original request has finished.
func (e *AlreadyExistsError) Completed() bool { return e.State == StateCompleted }

// Tracker stores idempotency keys with a bounded retention window.
type Tracker interface {
	// Reserve claims key for transactionID. A key that is already held yields
	// *AlreadyExistsError.
	Reserve(ctx context.Context, key, transactionID string) error
	// Complete marks the key completed and stores result. Completed keys can
	// no longer be released.
	Complete(ctx context.Context, key, transactionID string, result []byte) error
	// Release drops a reserved key held by transactionID.
	Release(ctx context.Context, key, transactionID string) error
	Lookup(ctx context.Context, key string) (Record, error)
}

// Scope builds the stored key. Keys are unique per operation type and
// initiator, so two users may reuse the same client key.
func Scope(operation, initiatorID, key string) string {
	return operation + ":" + initiatorID + ":" + key
}

func alreadyExists(key string, rec Record) *AlreadyExistsError {
	return &AlreadyExistsError{Key: key, TransactionID: rec.TransactionID, State: rec.State, Result: rec.Result}
}
