// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"

	"kamishop/internal/service/order/domain"
)

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID                int64          `gorm:"primaryKey;autoIncrement"`
	OrderID           string         `gorm:"size:64;uniqueIndex;not null"`
	ProductID         int64          `gorm:"index;not null"`
	Amount            float64        `gorm:"type:decimal(10,2)"`
	PaymentType       string         `gorm:"size:32"`
	WalletAddress     string         `gorm:"size:128"`
	QueryKey          string         `gorm:"size:64;index"`
	Status            string         `gorm:"size:16;index:idx_orders_sweep;not null"`
	IsDelivered       bool           `gorm:"index;not null;default:false"`
	DeliveredCardCode sql.NullString `gorm:"size:64"`
	DeliveredAt       sql.NullTime
	CreatedAt         time.Time `gorm:"index:idx_orders_sweep"`
	UpdatedAt         time.Time
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}

func toOrderModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:            o.ID,
		OrderID:       o.OrderID,
		ProductID:     o.ProductID,
		Amount:        o.Amount,
		PaymentType:   o.PaymentType,
		WalletAddress: o.WalletAddress,
		QueryKey:      o.QueryKey,
		Status:        string(o.Status),
		IsDelivered:   o.IsDelivered,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.DeliveredCardCode != "" {
		m.DeliveredCardCode = sql.NullString{String: o.DeliveredCardCode, Valid: true}
	}
	if o.DeliveredAt != nil {
		m.DeliveredAt = sql.NullTime{Time: *o.DeliveredAt, Valid: true}
	}
	return m
}

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:            m.ID,
		OrderID:       m.OrderID,
		ProductID:     m.ProductID,
		Amount:        m.Amount,
		PaymentType:   m.PaymentType,
		WalletAddress: m.WalletAddress,
		QueryKey:      m.QueryKey,
		Status:        domain.Status(m.Status),
		IsDelivered:   m.IsDelivered,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.DeliveredCardCode.Valid {
		o.DeliveredCardCode = m.DeliveredCardCode.String
	}
	if m.DeliveredAt.Valid {
		t := m.DeliveredAt.Time
		o.DeliveredAt = &t
	}
	return o
}
