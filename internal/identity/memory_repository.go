package identity

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bayarin/bayarin/internal/txn"
)

type memoryRepository struct {
	mu     sync.RWMutex
	users  map[string]User
	admins map[string]Admin
}

// NewMemoryRepository builds an in-memory identity store for tests and the
// memory storage backend.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User), admins: make(map[string]Admin)}
}

func (r *memoryRepository) Create(ctx context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrUserExists
		}
	}
	r.users[user.ID] = user
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.users, user.ID)
	})
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *memoryRepository) UpdatePIN(ctx context.Context, id string, pinHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	previous := user.PINHash
	user.PINHash = pinHash
	r.users[id] = user
	txn.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if u, ok := r.users[id]; ok {
			u.PINHash = previous
			r.users[id] = u
		}
	})
	return nil
}

func (r *memoryRepository) Search(_ context.Context, query string, limit, offset int) ([]User, int, error) {
	needle := strings.ToLower(query)
	r.mu.RLock()
	matched := make([]User, 0)
	for _, u := range r.users {
		if strings.Contains(strings.ToLower(u.Email), needle) ||
			strings.Contains(strings.ToLower(u.Phone), needle) ||
			strings.Contains(strings.ToLower(u.FullName), needle) {
			matched = append(matched, u)
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
		return []User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memoryRepository) CreateAdmin(_ context.Context, admin Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.admins[admin.Username]; exists {
		return ErrAdminExists
	}
	r.admins[admin.Username] = admin
	return nil
}

func (r *memoryRepository) FindAdminByUsername(_ context.Context, username string) (Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	admin, ok := r.admins[username]
	if !ok {
		return Admin{}, ErrAdminNotFound
	}
	return admin, nil
}
