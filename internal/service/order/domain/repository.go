// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"
)

// Repository 定义了订单聚合的持久化接口，由基础设施层实现。
type Repository interface {
	Create(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error

	FindByOrderID(ctx context.Context, orderID string) (*Order, error)

	// FindByOrderIDForUpdate 在当前事务内以排他锁读取订单行。
	// 履约编排在一个事务里读订单、占卡密、写订单，
	// 并发的重放回调会在这把锁上排队，醒来后看到已发货直接返回。
	FindByOrderIDForUpdate(ctx context.Context, orderID string) (*Order, error)

	FindLatestByQueryKey(ctx context.Context, queryKey string) (*Order, error)
	FindAllByQueryKey(ctx context.Context, queryKey string) ([]*Order, error)
	ListByStatus(ctx context.Context, status Status) ([]*Order, error)
	ListUndelivered(ctx context.Context) ([]*Order, error)

	// ListPage 分页查询，status 为空表示不过滤。返回总数用于翻页。
	ListPage(ctx context.Context, status Status, offset, limit int) ([]*Order, int64, error)

	// DeleteUnpaidBefore 单条事务性语句删除过期未付订单：
	// 限定条件 status = PENDING AND created_at < cutoff 在删除时刻
	// 对当前状态求值，并发转为 PAID 的订单不会被删。
	DeleteUnpaidBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
