// internal/service/order/infrastructure/memory/repository.go
// 内存版订单仓储与事务执行器，测试用。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"kamishop/internal/service/order/domain"
)

type OrderRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[string]*domain.Order // key: OrderID
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{items: make(map[string]*domain.Order)}
}

func (r *OrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	r.items[order.OrderID] = clone(order)
	return nil
}

func (r *OrderRepository) Update(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[order.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.items[order.OrderID] = clone(order)
	return nil
}

func (r *OrderRepository) FindByOrderID(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.items[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return clone(o), nil
}

// FindByOrderIDForUpdate 内存实现不单独加行锁：
// 事务执行器 TxRunner 已用一把全局锁串行化了所有事务。
func (r *OrderRepository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.FindByOrderID(ctx, orderID)
}

func (r *OrderRepository) FindLatestByQueryKey(_ context.Context, queryKey string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Order
	for _, o := range r.items {
		if o.QueryKey != queryKey {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, domain.ErrOrderNotFound
	}
	return clone(latest), nil
}

func (r *OrderRepository) FindAllByQueryKey(_ context.Context, queryKey string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Order
	for _, o := range r.items {
		if o.QueryKey == queryKey {
			out = append(out, clone(o))
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (r *OrderRepository) ListByStatus(_ context.Context, status domain.Status) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Order
	for _, o := range r.items {
		if o.Status == status {
			out = append(out, clone(o))
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (r *OrderRepository) ListUndelivered(_ context.Context) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Order
	for _, o := range r.items {
		if o.Status == domain.StatusPaid && !o.IsDelivered {
			out = append(out, clone(o))
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (r *OrderRepository) ListPage(_ context.Context, status domain.Status, offset, limit int) ([]*domain.Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*domain.Order
	for _, o := range r.items {
		if status != "" && o.Status != status {
			continue
		}
		all = append(all, clone(o))
	}
	sortByCreatedDesc(all)

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *OrderRepository) DeleteUnpaidBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, o := range r.items {
		if o.Status == domain.StatusPending && o.CreatedAt.Before(cutoff) {
			delete(r.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func sortByCreatedDesc(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func clone(o *domain.Order) *domain.Order {
	cp := *o
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		cp.DeliveredAt = &t
	}
	cp.Product = nil
	return &cp
}

// TxRunner 用一把互斥锁串行化所有"事务"，模拟数据库里
// FOR UPDATE 行锁带来的排队效果。
type TxRunner struct {
	mu sync.Mutex
}

func NewTxRunner() *TxRunner {
	return &TxRunner{}
}

func (t *TxRunner) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
