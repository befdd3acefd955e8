// internal/service/product/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"kamishop/internal/service/product/domain"
)

// ProductModel 对应数据库中的 products 表
type ProductModel struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	Name        string  `gorm:"size:128;not null"`
	Description string  `gorm:"type:text"`
	Price       float64 `gorm:"type:decimal(10,2)"`
	PaymentType string  `gorm:"size:32;default:usdt"`
	CardCount   int64   `gorm:"not null;default:0"`
	SoldCount   int64   `gorm:"not null;default:0"`
	IsActive    bool    `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (ProductModel) TableName() string {
	return "products"
}

func toProductModel(p *domain.Product) *ProductModel {
	return &ProductModel{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		PaymentType: p.PaymentType,
		CardCount:   p.CardCount,
		SoldCount:   p.SoldCount,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		PaymentType: m.PaymentType,
		CardCount:   m.CardCount,
		SoldCount:   m.SoldCount,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
