// internal/service/account/application/service.go
package application

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"kamishop/internal/service/account/domain"
)

// AccountService 负责后台账户的认证和初始化。
type AccountService struct {
	users domain.Repository
}

func NewAccountService(users domain.Repository) *AccountService {
	return &AccountService{users: users}
}

// EnsureDefaultAdmin 保证系统里存在管理员账户。幂等：
// 账户已存在时什么都不做，不会覆盖已修改的密码。
func (s *AccountService) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	_, err := s.users.FindByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !pkgerrors.Is(err, domain.ErrUserNotFound) {
		return pkgerrors.Wrap(err, "failed to check admin account")
	}

	admin, err := domain.NewUser(username, password, true)
	if err != nil {
		return pkgerrors.Wrap(err, "invalid default admin credentials")
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return pkgerrors.Wrap(err, "failed to create default admin")
	}
	log.Printf("Default admin account %s created", username)
	return nil
}

// Authenticate 按用户名+明文密码验证账户。
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if pkgerrors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrBadPassword
		}
		return nil, err
	}
	if err := user.CheckPassword(password); err != nil {
		return nil, err
	}
	return user, nil
}
