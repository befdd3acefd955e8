// internal/service/card/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"

	"kamishop/internal/service/card/domain"
)

// CardCodeModel 对应数据库中的 card_codes 表
type CardCodeModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	ProductID int64  `gorm:"index;not null"`
	Code      string `gorm:"size:64;uniqueIndex;not null"`
	IsUsed    bool   `gorm:"index:idx_card_codes_claim;not null;default:false"`
	UsedAt    sql.NullTime
	OrderID   sql.NullString `gorm:"size:64;index"`
	CreatedAt time.Time      `gorm:"index:idx_card_codes_claim"`
}

// TableName 指定 GORM 应该使用的表名
func (CardCodeModel) TableName() string {
	return "card_codes"
}

func toCardModel(c *domain.Card) *CardCodeModel {
	m := &CardCodeModel{
		ID:        c.ID,
		ProductID: c.ProductID,
		Code:      c.Code,
		IsUsed:    c.IsUsed,
		CreatedAt: c.CreatedAt,
	}
	if c.UsedAt != nil {
		m.UsedAt = sql.NullTime{Time: *c.UsedAt, Valid: true}
	}
	if c.OrderID != "" {
		m.OrderID = sql.NullString{String: c.OrderID, Valid: true}
	}
	return m
}

func toDomainCard(m *CardCodeModel) *domain.Card {
	c := &domain.Card{
		ID:        m.ID,
		ProductID: m.ProductID,
		Code:      m.Code,
		IsUsed:    m.IsUsed,
		CreatedAt: m.CreatedAt,
	}
	if m.UsedAt.Valid {
		t := m.UsedAt.Time
		c.UsedAt = &t
	}
	if m.OrderID.Valid {
		c.OrderID = m.OrderID.String
	}
	return c
}
