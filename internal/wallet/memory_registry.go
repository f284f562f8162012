package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bayarin/bayarin/internal/txn"
)

type memoryRegistry struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRegistry constructs an in-memory registry for tests and the
// memory storage backend.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{storage: make(map[string]Wallet)}
}

func (r *memoryRegistry) Create(ctx context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[w.ID]; exists {
		return ErrAlreadyProvisioned
	}
	for _, existing := range r.storage {
		if existing.OwnerID == w.OwnerID && existing.Type == w.Type {
			return ErrAlreadyProvisioned
		}
	}
	r.storage[w.ID] = w
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.storage, w.ID)
	})
	return nil
}

func (r *memoryRegistry) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

// GetForUpdate needs no lock of its own: memory units are already serialized.
func (r *memoryRegistry) GetForUpdate(ctx context.Context, id string) (Wallet, error) {
	return r.Get(ctx, id)
}

func (r *memoryRegistry) FindByOwnerAndType(_ context.Context, ownerID string, t Type) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.storage {
		if w.OwnerID == ownerID && w.Type == t {
			return w, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (r *memoryRegistry) ListByOwner(_ context.Context, ownerID string) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallets := make([]Wallet, 0, len(UserTypes))
	for _, w := range r.storage {
		if w.OwnerID == ownerID {
			wallets = append(wallets, w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].CreatedAt.Before(wallets[j].CreatedAt) })
	return wallets, nil
}

func (r *memoryRegistry) AdjustBalance(ctx context.Context, id string, delta, expectedPrior int64) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	if !w.IsActive() {
		return Wallet{}, ErrNotActive
	}
	if w.Balance != expectedPrior {
		return Wallet{}, ErrBalanceChanged
	}
	if w.Balance+delta < 0 && !w.AllowsOverdraft() {
		return Wallet{}, ErrInsufficient
	}

	prior := w
	w.Balance += delta
	w.UpdatedAt = time.Now().UTC()
	r.storage[id] = w
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.storage[id] = prior
	})
	return w, nil
}

func (r *memoryRegistry) SetStatus(ctx context.Context, id string, status Status, reason, _ string) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	if err := checkTransition(w.Status, status); err != nil {
		return Wallet{}, err
	}
	if w.Status == status {
		return w, nil
	}

	prior := w
	w.Status = status
	w.StatusReason = reason
	w.UpdatedAt = time.Now().UTC()
	r.storage[id] = w
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.storage[id] = prior
	})
	return w, nil
}
