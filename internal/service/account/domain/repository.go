// internal/service/account/domain/repository.go
package domain

import "context"

// Repository 定义了账户的持久化接口。
type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByUsername(ctx context.Context, username string) (*User, error)
}
