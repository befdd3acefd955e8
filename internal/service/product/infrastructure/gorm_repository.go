// internal/service/product/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"kamishop/internal/pkg/mysql"
	"kamishop/internal/service/product/domain"
)

// GormProductRepository 是 domain.Repository 的 GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) Create(ctx context.Context, product *domain.Product) error {
	model := toProductModel(product)
	if err := mysql.FromContext(ctx, r.db).Create(model).Error; err != nil {
		return pkgerrors.Wrap(err, "failed to insert product")
	}
	product.ID = model.ID
	return nil
}

func (r *GormProductRepository) Save(ctx context.Context, product *domain.Product) error {
	model := toProductModel(product)
	err := mysql.FromContext(ctx, r.db).Model(&ProductModel{}).Where("id = ?", model.ID).Updates(map[string]interface{}{
		"name":         model.Name,
		"description":  model.Description,
		"price":        model.Price,
		"payment_type": model.PaymentType,
		"is_active":    model.IsActive,
	}).Error
	return pkgerrors.Wrap(err, "failed to update product")
}

func (r *GormProductRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	var model ProductModel
	err := mysql.FromContext(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to query product")
	}
	return toDomainProduct(&model), nil
}

func (r *GormProductRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Product, error) {
	q := mysql.FromContext(ctx, r.db).Model(&ProductModel{}).Order("created_at DESC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var models []ProductModel
	if err := q.Find(&models).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list products")
	}
	products := make([]*domain.Product, 0, len(models))
	for i := range models {
		products = append(products, toDomainProduct(&models[i]))
	}
	return products, nil
}

func (r *GormProductRepository) UpdateCounters(ctx context.Context, id int64, cardCount, soldCount int64) error {
	err := mysql.FromContext(ctx, r.db).Model(&ProductModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"card_count": cardCount,
		"sold_count": soldCount,
	}).Error
	return pkgerrors.Wrap(err, "failed to update product counters")
}
