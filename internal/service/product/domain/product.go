// internal/service/product/domain/product.go
package domain

import (
	"errors"
	"time"
)

var (
	ErrProductNotFound = errors.New("product not found")

	// ErrProductInactive 表示商品存在但已下架，不再接受新订单。
	ErrProductInactive = errors.New("product is not for sale")
)

// Product 是商品实体。CardCount/SoldCount 是从卡密池派生的缓存值，
// 每次池变更或发货之后整体重算，绝不在原值上做增减。
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       float64
	PaymentType string
	CardCount   int64
	SoldCount   int64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProduct 创建一个上架状态的商品。
func NewProduct(name, description string, price float64, paymentType string) (*Product, error) {
	if name == "" {
		return nil, errors.New("product name must not be empty")
	}
	if price < 0 {
		return nil, errors.New("product price must not be negative")
	}
	if paymentType == "" {
		paymentType = "usdt"
	}
	now := time.Now()
	return &Product{
		Name:        name,
		Description: description,
		Price:       price,
		PaymentType: paymentType,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
