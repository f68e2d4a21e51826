package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository"
)

// UserRepository is a seedable in-memory directory.
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*model.User
}

func NewUserRepository(users ...*model.User) *UserRepository {
	r := &UserRepository{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

func (r *UserRepository) Put(u *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) ListByDepartment(ctx context.Context, role model.Role, department string) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.User
	for _, u := range r.users {
		if u.Role == role && strings.EqualFold(u.Department, department) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}
