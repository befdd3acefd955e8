// internal/service/account/application/service_test.go
package application

import (
	"context"
	"errors"
	"testing"

	"kamishop/internal/service/account/domain"
	accountmemory "kamishop/internal/service/account/infrastructure/memory"
)

func TestEnsureDefaultAdminIsIdempotent(t *testing.T) {
	repo := accountmemory.NewUserRepository()
	svc := NewAccountService(repo)
	ctx := context.Background()

	if err := svc.EnsureDefaultAdmin(ctx, "admin", "admin123"); err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	created, err := repo.FindByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("find admin: %v", err)
	}
	if !created.IsAdmin {
		t.Error("bootstrapped account must be admin")
	}
	if created.PasswordHash == "admin123" {
		t.Error("password stored in plaintext")
	}

	// 二次启动换了配置密码也不能覆盖已存在的账户
	if err := svc.EnsureDefaultAdmin(ctx, "admin", "different-password"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	again, _ := repo.FindByUsername(ctx, "admin")
	if again.ID != created.ID || again.PasswordHash != created.PasswordHash {
		t.Error("second bootstrap must not touch the existing account")
	}
}

func TestAuthenticate(t *testing.T) {
	repo := accountmemory.NewUserRepository()
	svc := NewAccountService(repo)
	ctx := context.Background()

	if err := svc.EnsureDefaultAdmin(ctx, "admin", "admin123"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	user, err := svc.Authenticate(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Username != "admin" || !user.IsAdmin {
		t.Errorf("unexpected principal: %+v", user)
	}

	if _, err := svc.Authenticate(ctx, "admin", "wrong"); !errors.Is(err, domain.ErrBadPassword) {
		t.Errorf("wrong password: expected ErrBadPassword, got %v", err)
	}
	// 未知用户与密码错误不可区分，避免用户名枚举
	if _, err := svc.Authenticate(ctx, "nobody", "admin123"); !errors.Is(err, domain.ErrBadPassword) {
		t.Errorf("unknown user: expected ErrBadPassword, got %v", err)
	}
}
