// internal/service/card/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kamishop/internal/pkg/mysql"
	"kamishop/internal/service/card/domain"
)

const mysqlErrDuplicateEntry = 1062

// GormCardRepository 是 domain.Repository 的 GORM 实现
type GormCardRepository struct {
	db *gorm.DB
}

func NewGormCardRepository(db *gorm.DB) *GormCardRepository {
	return &GormCardRepository{db: db}
}

func (r *GormCardRepository) Insert(ctx context.Context, card *domain.Card) error {
	model := toCardModel(card)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now()
	}
	if err := mysql.FromContext(ctx, r.db).Create(model).Error; err != nil {
		// 唯一索引兜底：并发导入同一卡密时数据库是最后一道闸
		var mysqlErr *gosqlmysql.MySQLError
		if pkgerrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return domain.ErrCodeExists
		}
		return pkgerrors.Wrap(err, "failed to insert card code")
	}
	card.ID = model.ID
	card.CreatedAt = model.CreatedAt
	return nil
}

func (r *GormCardRepository) FindByID(ctx context.Context, id int64) (*domain.Card, error) {
	var model CardCodeModel
	err := mysql.FromContext(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCardNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to query card code")
	}
	return toDomainCard(&model), nil
}

func (r *GormCardRepository) FindByCode(ctx context.Context, code string) (*domain.Card, error) {
	var model CardCodeModel
	err := mysql.FromContext(ctx, r.db).Where("code = ?", code).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCardNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to query card code by code")
	}
	return toDomainCard(&model), nil
}

func (r *GormCardRepository) ListByProduct(ctx context.Context, productID int64) ([]*domain.Card, error) {
	var models []CardCodeModel
	err := mysql.FromContext(ctx, r.db).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list card codes")
	}
	cards := make([]*domain.Card, 0, len(models))
	for i := range models {
		cards = append(cards, toDomainCard(&models[i]))
	}
	return cards, nil
}

func (r *GormCardRepository) CountUnused(ctx context.Context, productID int64) (int64, error) {
	var n int64
	err := mysql.FromContext(ctx, r.db).Model(&CardCodeModel{}).
		Where("product_id = ? AND is_used = ?", productID, false).
		Count(&n).Error
	return n, pkgerrors.Wrap(err, "failed to count unused card codes")
}

func (r *GormCardRepository) CountUsed(ctx context.Context, productID int64) (int64, error) {
	var n int64
	err := mysql.FromContext(ctx, r.db).Model(&CardCodeModel{}).
		Where("product_id = ? AND is_used = ?", productID, true).
		Count(&n).Error
	return n, pkgerrors.Wrap(err, "failed to count used card codes")
}

func (r *GormCardRepository) Delete(ctx context.Context, id int64) error {
	result := mysql.FromContext(ctx, r.db).Delete(&CardCodeModel{}, id)
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to delete card code")
	}
	if result.RowsAffected == 0 {
		return domain.ErrCardNotFound
	}
	return nil
}

// Claim 原子占用一张未用卡密。候选行用 FOR UPDATE 锁定，
// 翻转时再带上 is_used = 0 的条件双保险：锁定之后条件更新
// 影响 0 行说明有并发路径绕过了行锁，按不变量破坏处理。
func (r *GormCardRepository) Claim(ctx context.Context, productID int64, orderID string) (*domain.Card, error) {
	db := mysql.FromContext(ctx, r.db)

	var model CardCodeModel
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND is_used = ?", productID, false).
		Order("created_at ASC").
		Limit(1).
		Take(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNoStock
		}
		return nil, pkgerrors.Wrap(err, "failed to select claim candidate")
	}

	now := time.Now()
	result := db.Model(&CardCodeModel{}).
		Where("id = ? AND is_used = ?", model.ID, false).
		Updates(map[string]interface{}{
			"is_used":  true,
			"used_at":  now,
			"order_id": orderID,
		})
	if result.Error != nil {
		return nil, pkgerrors.Wrap(result.Error, "failed to claim card code")
	}
	if result.RowsAffected == 0 {
		return nil, pkgerrors.Wrapf(domain.ErrCardAlreadyUsed, "card %d claimed concurrently despite row lock", model.ID)
	}

	model.IsUsed = true
	model.UsedAt.Time, model.UsedAt.Valid = now, true
	model.OrderID.String, model.OrderID.Valid = orderID, true
	return toDomainCard(&model), nil
}
