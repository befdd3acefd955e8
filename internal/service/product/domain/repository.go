// internal/service/product/domain/repository.go
package domain

import "context"

// Repository 定义了商品聚合的持久化接口，由基础设施层实现。
type Repository interface {
	Create(ctx context.Context, product *Product) error
	Save(ctx context.Context, product *Product) error
	FindByID(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context, activeOnly bool) ([]*Product, error)

	// UpdateCounters 覆写缓存计数，值由调用方从卡密池重算得出。
	UpdateCounters(ctx context.Context, id int64, cardCount, soldCount int64) error
}
