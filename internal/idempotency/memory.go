package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker keeps keys in process memory. Used by tests and the memory
// storage backend.
type MemoryTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]Record
}

// NewMemoryTracker builds a MemoryTracker retaining keys for ttl.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{ttl: ttl, now: time.Now, records: make(map[string]Record)}
}

// SetClock replaces the time source used for expiry.
func (t *MemoryTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func (t *MemoryTracker) Reserve(_ context.Context, key, transactionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.live(key); ok {
		return alreadyExists(key, rec)
	}
	t.records[key] = Record{TransactionID: transactionID, State: StateReserved, ExpiresAt: t.now().Add(t.ttl)}
	return nil
}

func (t *MemoryTracker) Complete(_ context.Context, key, transactionID string, result []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.live(key)
	if ok && rec.TransactionID != transactionID {
		return ErrNotOwner
	}
	if !ok {
		rec = Record{TransactionID: transactionID, ExpiresAt: t.now().Add(t.ttl)}
	}
	rec.State = StateCompleted
	rec.Result = append([]byte(nil), result...)
	t.records[key] = rec
	return nil
}

func (t *MemoryTracker) Release(_ context.Context, key, transactionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.live(key)
	if !ok {
		return nil
	}
	if rec.TransactionID != transactionID {
		return ErrNotOwner
	}
	if rec.State == StateCompleted {
		return ErrCompleted
	}
	delete(t.records, key)
	return nil
}

func (t *MemoryTracker) Lookup(_ context.Context, key string) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.live(key)
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// PurgeExpired deletes every expired record and reports how many were removed.
func (t *MemoryTracker) PurgeExpired(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	purged := 0
	for key, rec := range t.records {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if !now.Before(rec.ExpiresAt) {
			delete(t.records, key)
			purged++
		}
	}
	return purged, nil
}

// live returns the record for key unless it expired; expired records are dropped.
func (t *MemoryTracker) live(key string) (Record, bool) {
	rec, ok := t.records[key]
	if !ok {
		return Record{}, false
	}
	if !t.now().Before(rec.ExpiresAt) {
		delete(t.records, key)
		return Record{}, false
	}
	return rec, true
}
