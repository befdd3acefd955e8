// internal/service/account/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"kamishop/internal/pkg/mysql"
	"kamishop/internal/service/account/domain"
)

// GormUserRepository 是 domain.Repository 的 GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	model := toUserModel(user)
	if err := mysql.FromContext(ctx, r.db).Create(model).Error; err != nil {
		return pkgerrors.Wrap(err, "failed to insert user")
	}
	user.ID = model.ID
	return nil
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var model UserModel
	err := mysql.FromContext(ctx, r.db).Where("username = ?", username).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, pkgerrors.Wrap(err, "failed to query user")
	}
	return toDomainUser(&model), nil
}
