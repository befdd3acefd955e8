// internal/service/product/infrastructure/memory/repository.go
// 内存版商品仓储，测试用。读写都在锁内完成，读取返回副本。
package memory

import (
	"context"
	"sync"
	"time"

	"kamishop/internal/service/product/domain"
)

type ProductRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{items: make(map[int64]*domain.Product)}
}

func (r *ProductRepository) Create(_ context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	product.ID = r.nextID
	r.items[product.ID] = clone(product)
	return nil
}

func (r *ProductRepository) Save(_ context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	r.items[product.ID] = clone(product)
	return nil
}

func (r *ProductRepository) FindByID(_ context.Context, id int64) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return clone(p), nil
}

func (r *ProductRepository) List(_ context.Context, activeOnly bool) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Product
	for _, p := range r.items {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, clone(p))
	}
	return out, nil
}

func (r *ProductRepository) UpdateCounters(_ context.Context, id int64, cardCount, soldCount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.CardCount = cardCount
	p.SoldCount = soldCount
	p.UpdatedAt = time.Now()
	return nil
}

func clone(p *domain.Product) *domain.Product {
	cp := *p
	return &cp
}
