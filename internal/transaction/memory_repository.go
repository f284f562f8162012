package transaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bayarin/bayarin/internal/txn"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Transaction
}

// NewMemoryRepository builds an in-memory transaction store for tests and
// the memory storage backend.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Transaction)}
}

func (r *memoryRepository) Create(ctx context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.storage {
		if existing.Status != StatusFailed && existing.InitiatorID == tx.InitiatorID &&
			existing.Type == tx.Type && existing.IdempotencyKey == tx.IdempotencyKey {
			return ErrDuplicateKey
		}
	}
	r.storage[tx.ID] = tx
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.storage, tx.ID)
	})
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.storage[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

// GetForUpdate needs no lock of its own: memory units are already serialized.
func (r *memoryRepository) GetForUpdate(ctx context.Context, id string) (Transaction, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepository) FindByIdempotencyKey(_ context.Context, initiatorID string, t Type, key string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tx := range r.storage {
		if tx.Status != StatusFailed && tx.InitiatorID == initiatorID && tx.Type == t && tx.IdempotencyKey == key {
			return tx, nil
		}
	}
	return Transaction{}, ErrNotFound
}

func (r *memoryRepository) UpdateStatus(ctx context.Context, id string, from, to Status, failureReason string) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.storage[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if tx.Status != from || !CanTransition(from, to) {
		return Transaction{}, ErrStatusChanged
	}

	prior := tx
	tx = applyStatus(tx, to, failureReason, time.Now().UTC())
	r.storage[id] = tx
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.storage[id] = prior
	})
	return tx, nil
}

func (r *memoryRepository) ListByWallets(ctx context.Context, walletIDs []string, limit, offset int) ([]Transaction, int, error) {
	if walletIDs == nil {
		walletIDs = []string{}
	}
	return r.Search(ctx, Filter{WalletIDs: walletIDs, Limit: limit, Offset: offset})
}

func (r *memoryRepository) Search(_ context.Context, filter Filter) ([]Transaction, int, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset)

	r.mu.RLock()
	matched := make([]Transaction, 0)
	for _, tx := range r.storage {
		if filter.matches(tx) {
			matched = append(matched, tx)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []Transaction{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memoryRepository) ListByReference(_ context.Context, referenceID string) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Transaction, 0)
	for _, tx := range r.storage {
		if tx.ReferenceID == referenceID {
			list = append(list, tx)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (r *memoryRepository) RefundedAmount(_ context.Context, referenceID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, tx := range r.storage {
		if tx.ReferenceID == referenceID && tx.Status == StatusSuccess &&
			(tx.Type == TypeRefund || tx.Type == TypeReversal) {
			total += tx.Amount
		}
	}
	return total, nil
}

func (r *memoryRepository) ListPending(_ context.Context, cutoff time.Time, limit int) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Transaction, 0)
	for _, tx := range r.storage {
		if tx.Status == StatusPending && tx.CreatedAt.Before(cutoff) {
			list = append(list, tx)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
