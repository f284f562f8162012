package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bayarin/bayarin/internal/txn"
)

// MemoryStore keeps entries in process memory. Used for tests and the memory
// storage backend.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	entries []Entry
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) AppendEntries(ctx context.Context, entries []Entry) error {
	if err := validateBatch(entries); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(entries))
	for i := range entries {
		s.seq++
		entries[i].Seq = s.seq
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = s.now()
		}
		ids[entries[i].ID] = struct{}{}
		s.entries = append(s.entries, entries[i])
	}

	txn.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		kept := s.entries[:0]
		for _, e := range s.entries {
			if _, drop := ids[e.ID]; !drop {
				kept = append(kept, e)
			}
		}
		s.entries = kept
	})
	return nil
}

func (s *MemoryStore) EntriesForWallet(_ context.Context, walletID string, limit, offset int) (Page, error) {
	return s.page(Filter{WalletIDs: []string{walletID}}, limit, offset), nil
}

func (s *MemoryStore) EntriesForTransaction(_ context.Context, transactionID string) ([]Entry, error) {
	page := s.page(Filter{TransactionID: transactionID}, maxPageSize, 0)
	return page.Entries, nil
}

func (s *MemoryStore) RecomputeBalance(_ context.Context, walletID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var balance int64
	for _, e := range s.entries {
		if e.WalletID == walletID {
			balance += e.Signed()
		}
	}
	return balance, nil
}

func (s *MemoryStore) Search(_ context.Context, filter Filter) (Page, error) {
	return s.page(filter, filter.Limit, filter.Offset), nil
}

func (s *MemoryStore) page(filter Filter, limit, offset int) Page {
	limit, offset = NormalizePage(limit, offset)

	s.mu.RLock()
	matched := make([]Entry, 0)
	for _, e := range s.entries {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].Seq < matched[j].Seq
	})

	total := len(matched)
	if offset >= total {
		return Page{Entries: []Entry{}, Total: total}
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return Page{Entries: matched[offset:end], Total: total}
}
