// internal/service/card/domain/repository.go
package domain

import "context"

// Repository 定义了卡密池的持久化接口，由基础设施层实现。
type Repository interface {
	Insert(ctx context.Context, card *Card) error
	FindByID(ctx context.Context, id int64) (*Card, error)
	FindByCode(ctx context.Context, code string) (*Card, error)
	ListByProduct(ctx context.Context, productID int64) ([]*Card, error)
	CountUnused(ctx context.Context, productID int64) (int64, error)
	CountUsed(ctx context.Context, productID int64) (int64, error)
	Delete(ctx context.Context, id int64) error

	// Claim 是分配器的原子原语：取该商品按创建时间最早的一张
	// 未使用卡密，在同一个原子步骤里置为已用并盖上订单号。
	// 没有可用卡密时返回 ErrNoStock 且不产生任何副作用。
	// 实现必须保证同一张卡密至多被一个调用方拿到——条件更新
	// 或事务级行锁，先读后写的裸实现不满足契约。
	Claim(ctx context.Context, productID int64, orderID string) (*Card, error)
}

// CodeRule 是可配置的卡密格式规则（导入校验用）。
type CodeRule interface {
	// Validate 返回该卡密是否满足格式规则。
	Validate(code string) (bool, error)
}
