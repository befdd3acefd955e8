// internal/service/card/infrastructure/memory/repository.go
// 内存版卡密仓储，测试用。Claim 在一把互斥锁内完成挑选和标记，
// 满足仓储契约的原子性要求。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"kamishop/internal/service/card/domain"
)

type CardRepository struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*domain.Card
}

func NewCardRepository() *CardRepository {
	return &CardRepository{items: make(map[int64]*domain.Card)}
}

func (r *CardRepository) Insert(_ context.Context, card *domain.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.Code == card.Code {
			return domain.ErrCodeExists
		}
	}
	r.nextID++
	card.ID = r.nextID
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}
	r.items[card.ID] = clone(card)
	return nil
}

func (r *CardRepository) FindByID(_ context.Context, id int64) (*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, domain.ErrCardNotFound
	}
	return clone(c), nil
}

func (r *CardRepository) FindByCode(_ context.Context, code string) (*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.Code == code {
			return clone(c), nil
		}
	}
	return nil, domain.ErrCardNotFound
}

func (r *CardRepository) ListByProduct(_ context.Context, productID int64) ([]*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Card
	for _, c := range r.items {
		if c.ProductID == productID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CardRepository) CountUnused(_ context.Context, productID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.items {
		if c.ProductID == productID && !c.IsUsed {
			n++
		}
	}
	return n, nil
}

func (r *CardRepository) CountUsed(_ context.Context, productID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.items {
		if c.ProductID == productID && c.IsUsed {
			n++
		}
	}
	return n, nil
}

func (r *CardRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domain.ErrCardNotFound
	}
	delete(r.items, id)
	return nil
}

// Claim 在锁内挑出该商品创建最早的未用卡密并就地标记，
// 并发调用方拿到的一定是不同的卡密。
func (r *CardRepository) Claim(_ context.Context, productID int64, orderID string) (*domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *domain.Card
	for _, c := range r.items {
		if c.ProductID != productID || c.IsUsed {
			continue
		}
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) ||
			(c.CreatedAt.Equal(oldest.CreatedAt) && c.ID < oldest.ID) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, domain.ErrNoStock
	}

	now := time.Now()
	oldest.IsUsed = true
	oldest.OrderID = orderID
	oldest.UsedAt = &now
	return clone(oldest), nil
}

func clone(c *domain.Card) *domain.Card {
	cp := *c
	if c.UsedAt != nil {
		t := *c.UsedAt
		cp.UsedAt = &t
	}
	return &cp
}
