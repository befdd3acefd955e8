// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kamishop/internal/pkg/mysql"
	"kamishop/internal/service/order/domain"
)

// GormOrderRepository 是 domain.Repository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := toOrderModel(order)
	if err := mysql.FromContext(ctx, r.db).Create(model).Error; err != nil {
		return pkgerrors.Wrap(err, "failed to insert order")
	}
	order.ID = model.ID
	return nil
}

func (r *GormOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	model := toOrderModel(order)
	err := mysql.FromContext(ctx, r.db).Model(&OrderModel{}).Where("order_id = ?", model.OrderID).Updates(map[string]interface{}{
		"status":              model.Status,
		"is_delivered":        model.IsDelivered,
		"delivered_card_code": model.DeliveredCardCode,
		"delivered_at":        model.DeliveredAt,
		"updated_at":          model.UpdatedAt,
	}).Error
	return pkgerrors.Wrap(err, "failed to update order")
}

func (r *GormOrderRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.findOne(mysql.FromContext(ctx, r.db), orderID)
}

// FindByOrderIDForUpdate 以 SELECT ... FOR UPDATE 读取订单行。
// 必须在事务内调用，否则锁没有意义。
func (r *GormOrderRepository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	db := mysql.FromContext(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findOne(db, orderID)
}

func (r *GormOrderRepository) findOne(db *gorm.DB, orderID string) (*domain.Order, error) {
	var model OrderModel
	err := db.Where("order_id = ?", orderID).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to query order")
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindLatestByQueryKey(ctx context.Context, queryKey string) (*domain.Order, error) {
	var model OrderModel
	err := mysql.FromContext(ctx, r.db).
		Where("query_key = ?", queryKey).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to query order by query key")
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindAllByQueryKey(ctx context.Context, queryKey string) ([]*domain.Order, error) {
	var models []OrderModel
	err := mysql.FromContext(ctx, r.db).
		Where("query_key = ?", queryKey).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list orders by query key")
	}
	return toDomainOrders(models), nil
}

func (r *GormOrderRepository) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	var models []OrderModel
	err := mysql.FromContext(ctx, r.db).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list orders by status")
	}
	return toDomainOrders(models), nil
}

func (r *GormOrderRepository) ListUndelivered(ctx context.Context) ([]*domain.Order, error) {
	var models []OrderModel
	err := mysql.FromContext(ctx, r.db).
		Where("status = ? AND is_delivered = ?", string(domain.StatusPaid), false).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list undelivered orders")
	}
	return toDomainOrders(models), nil
}

func (r *GormOrderRepository) ListPage(ctx context.Context, status domain.Status, offset, limit int) ([]*domain.Order, int64, error) {
	q := mysql.FromContext(ctx, r.db).Model(&OrderModel{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(err, "failed to count orders")
	}

	var models []OrderModel
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error
	if err != nil {
		return nil, 0, pkgerrors.Wrap(err, "failed to page orders")
	}
	return toDomainOrders(models), total, nil
}

// DeleteUnpaidBefore 是单条 DELETE，限定条件由数据库在删除时刻
// 对当前行状态求值，不依赖先读后删的过期快照。
func (r *GormOrderRepository) DeleteUnpaidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := mysql.FromContext(ctx, r.db).
		Where("status = ? AND created_at < ?", string(domain.StatusPending), cutoff).
		Delete(&OrderModel{})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(result.Error, "failed to delete unpaid orders")
	}
	return result.RowsAffected, nil
}

func toDomainOrders(models []OrderModel) []*domain.Order {
	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, toDomainOrder(&models[i]))
	}
	return orders
}
