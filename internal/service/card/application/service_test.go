// internal/service/card/application/service_test.go
package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"kamishop/internal/service/card/domain"
	cardmemory "kamishop/internal/service/card/infrastructure/memory"
	productapp "kamishop/internal/service/product/application"
	productmemory "kamishop/internal/service/product/infrastructure/memory"
)

func newCardFixture(t *testing.T, rule domain.CodeRule) (*CardService, *productapp.ProductService, int64) {
	t.Helper()
	cards := cardmemory.NewCardRepository()
	products := productmemory.NewProductRepository()
	productSvc := productapp.NewProductService(products, cards)
	svc := NewCardService(cards, productSvc, rule)

	p, err := productSvc.Create(context.Background(), "Steam Wallet 50", "", 49.9, "usdt")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return svc, productSvc, p.ID
}

func TestGenerateCreatesUniqueCodes(t *testing.T) {
	svc, productSvc, productID := newCardFixture(t, nil)
	ctx := context.Background()

	cards, err := svc.Generate(ctx, productID, 5, "STEAM")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(cards) != 5 {
		t.Fatalf("expected 5 cards, got %d", len(cards))
	}

	seen := make(map[string]struct{})
	for _, c := range cards {
		if !strings.HasPrefix(c.Code, "STEAM-") {
			t.Errorf("code %q missing prefix", c.Code)
		}
		if _, dup := seen[c.Code]; dup {
			t.Errorf("code %q generated twice", c.Code)
		}
		seen[c.Code] = struct{}{}
	}

	p, err := productSvc.Get(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.CardCount != 5 || p.SoldCount != 0 {
		t.Errorf("counters not recomputed: card=%d sold=%d", p.CardCount, p.SoldCount)
	}
}

// collidingRepo 让前 n 次插入撞上唯一约束，验证生成重试
type collidingRepo struct {
	*cardmemory.CardRepository
	collisions int
}

func (r *collidingRepo) Insert(ctx context.Context, card *domain.Card) error {
	if r.collisions > 0 {
		r.collisions--
		return domain.ErrCodeExists
	}
	return r.CardRepository.Insert(ctx, card)
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	cards := &collidingRepo{CardRepository: cardmemory.NewCardRepository(), collisions: 3}
	products := productmemory.NewProductRepository()
	productSvc := productapp.NewProductService(products, cards)
	svc := NewCardService(cards, productSvc, nil)

	ctx := context.Background()
	p, err := productSvc.Create(ctx, "Game Key", "", 9.9, "usdt")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	generated, err := svc.Generate(ctx, p.ID, 1, "")
	if err != nil {
		t.Fatalf("generate should survive 3 collisions: %v", err)
	}
	if len(generated) != 1 {
		t.Fatalf("expected 1 card, got %d", len(generated))
	}

	// 重试上限之上必须放弃
	cards.collisions = 100
	if _, err := svc.Generate(ctx, p.ID, 1, ""); err == nil {
		t.Error("expected failure when collisions never stop")
	}
}

func TestGenerateUnknownProduct(t *testing.T) {
	svc, _, _ := newCardFixture(t, nil)
	if _, err := svc.Generate(context.Background(), 999, 1, ""); err == nil {
		t.Fatal("expected error for unknown product")
	}
}

func TestImportSkipsBadLines(t *testing.T) {
	svc, productSvc, productID := newCardFixture(t, nil)
	ctx := context.Background()

	lines := []string{
		"ABC-123",               // ok
		"ab",                    // too short
		"  ABC-123  ",           // duplicate in batch after trim
		"   ",                   // blank, silently dropped
		strings.Repeat("X", 60), // too long
		"DEF-456",               // ok
	}
	result, err := svc.Import(ctx, productID, lines)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(result.Accepted) != 2 {
		t.Fatalf("expected 2 accepted, got %d", len(result.Accepted))
	}
	if len(result.Skipped) != 3 {
		t.Fatalf("expected 3 skipped, got %d: %+v", len(result.Skipped), result.Skipped)
	}

	reasons := make(map[string]string)
	for _, s := range result.Skipped {
		reasons[s.Code] = s.Reason
	}
	if reasons["ab"] != "too short" {
		t.Errorf("unexpected reason for short code: %q", reasons["ab"])
	}
	if reasons["ABC-123"] != "duplicate in batch" {
		t.Errorf("unexpected reason for duplicate: %q", reasons["ABC-123"])
	}

	p, _ := productSvc.Get(ctx, productID)
	if p.CardCount != 2 {
		t.Errorf("expected card_count 2, got %d", p.CardCount)
	}
}

func TestImportExistingCodeSkipped(t *testing.T) {
	svc, _, productID := newCardFixture(t, nil)
	ctx := context.Background()

	if _, err := svc.Import(ctx, productID, []string{"SAME-CODE"}); err != nil {
		t.Fatalf("first import: %v", err)
	}
	result, err := svc.Import(ctx, productID, []string{"SAME-CODE", "OTHER-CODE"})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if len(result.Accepted) != 1 || result.Accepted[0].Code != "OTHER-CODE" {
		t.Fatalf("unexpected accepted set: %+v", result.Accepted)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Reason != "already exists" {
		t.Fatalf("unexpected skipped set: %+v", result.Skipped)
	}
}

func TestImportAllRejectedFails(t *testing.T) {
	svc, _, productID := newCardFixture(t, nil)

	_, err := svc.Import(context.Background(), productID, []string{"ab", "x"})
	if err == nil {
		t.Fatal("expected error when every line is rejected")
	}
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %T: %v", err, err)
	}
	if len(importErr.Skipped) != 2 {
		t.Fatalf("expected 2 skip reasons, got %d", len(importErr.Skipped))
	}
}

// 固定返回值的格式规则，测试规则拒绝路径用
type rejectAllRule struct{}

func (rejectAllRule) Validate(string) (bool, error) { return false, nil }

func TestImportFormatRuleRejects(t *testing.T) {
	svc, _, productID := newCardFixture(t, rejectAllRule{})

	_, err := svc.Import(context.Background(), productID, []string{"GOOD-ENOUGH"})
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %v", err)
	}
	if importErr.Skipped[0].Reason != "rejected by format rule" {
		t.Errorf("unexpected reason: %q", importErr.Skipped[0].Reason)
	}
}

func TestDeleteUnusedOnly(t *testing.T) {
	svc, productSvc, productID := newCardFixture(t, nil)
	ctx := context.Background()

	result, err := svc.Import(ctx, productID, []string{"DEL-ME", "KEEP-ME"})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if err := svc.Delete(ctx, result.Accepted[0].ID); err != nil {
		t.Fatalf("delete unused: %v", err)
	}
	p, _ := productSvc.Get(ctx, productID)
	if p.CardCount != 1 {
		t.Errorf("expected card_count 1 after delete, got %d", p.CardCount)
	}

	// 消费掉剩下的一张，再删就必须被拒绝
	used, err := svc.cards.Claim(ctx, productID, "order-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := svc.Delete(ctx, used.ID); !errors.Is(err, domain.ErrCardAlreadyUsed) {
		t.Fatalf("expected ErrCardAlreadyUsed, got %v", err)
	}
}
