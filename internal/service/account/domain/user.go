// internal/service/account/domain/user.go
package domain

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrBadPassword  = errors.New("username or password is incorrect")
)

// User 是后台账户。密码只保存 bcrypt 散列，明文不落库。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser 创建账户并对明文密码做散列。
func NewUser(username, password string, isAdmin bool) (*User, error) {
	if username == "" {
		return nil, errors.New("username must not be empty")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &User{
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      isAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CheckPassword 校验明文密码是否匹配。
func (u *User) CheckPassword(password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}
