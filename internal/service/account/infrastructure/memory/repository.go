// internal/service/account/infrastructure/memory/repository.go
// 内存版账户仓储，测试用。
package memory

import (
	"context"
	"sync"

	"kamishop/internal/service/account/domain"
)

type UserRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[string]*domain.User // key: Username
}

func NewUserRepository() *UserRepository {
	return &UserRepository{items: make(map[string]*domain.User)}
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	user.ID = r.nextID
	r.items[user.Username] = clone(user)
	return nil
}

func (r *UserRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return clone(u), nil
}

func clone(u *domain.User) *domain.User {
	cp := *u
	return &cp
}
