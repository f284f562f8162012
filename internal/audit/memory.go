package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/bayarin/bayarin/internal/txn"
)

type memoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryRepository builds an in-memory audit log.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Record(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	id := entry.ID
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i := range r.entries {
			if r.entries[i].ID == id {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]Entry, int, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset)

	r.mu.RLock()
	matched := make([]Entry, 0)
	for _, e := range r.entries {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if offset >= total {
		return []Entry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
