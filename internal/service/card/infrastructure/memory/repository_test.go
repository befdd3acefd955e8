// internal/service/card/infrastructure/memory/repository_test.go
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"kamishop/internal/service/card/domain"
)

func TestClaimHandsOutEachCardOnce(t *testing.T) {
	repo := NewCardRepository()
	ctx := context.Background()

	const pool = 10
	for i := 0; i < pool; i++ {
		if err := repo.Insert(ctx, &domain.Card{ProductID: 1, Code: fmt.Sprintf("CODE-%03d", i)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// 池子 10 张，30 个并发领取者
	const claimers = 30
	var mu sync.Mutex
	claimed := make(map[string]string)
	var empty int

	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		orderID := fmt.Sprintf("order-%03d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			card, err := repo.Claim(ctx, 1, orderID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, domain.ErrNoStock) {
					empty++
					return
				}
				t.Errorf("claim: %v", err)
				return
			}
			if prev, taken := claimed[card.Code]; taken {
				t.Errorf("card %s claimed by both %s and %s", card.Code, prev, orderID)
			}
			claimed[card.Code] = orderID
		}()
	}
	wg.Wait()

	if len(claimed) != pool {
		t.Errorf("expected %d claims, got %d", pool, len(claimed))
	}
	if empty != claimers-pool {
		t.Errorf("expected %d empty-pool results, got %d", claimers-pool, empty)
	}

	unused, _ := repo.CountUnused(ctx, 1)
	used, _ := repo.CountUsed(ctx, 1)
	if unused != 0 || used != pool {
		t.Errorf("pool accounting off: unused=%d used=%d", unused, used)
	}
}

func TestClaimPrefersOldestCard(t *testing.T) {
	repo := NewCardRepository()
	ctx := context.Background()

	for _, code := range []string{"FIRST", "SECOND", "THIRD"} {
		if err := repo.Insert(ctx, &domain.Card{ProductID: 1, Code: code}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	for _, want := range []string{"FIRST", "SECOND", "THIRD"} {
		card, err := repo.Claim(ctx, 1, "order-"+want)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if card.Code != want {
			t.Errorf("expected %s next, got %s", want, card.Code)
		}
	}
	if _, err := repo.Claim(ctx, 1, "order-x"); !errors.Is(err, domain.ErrNoStock) {
		t.Errorf("expected ErrNoStock on empty pool, got %v", err)
	}
}

func TestInsertRejectsDuplicateCode(t *testing.T) {
	repo := NewCardRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, &domain.Card{ProductID: 1, Code: "DUP"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, &domain.Card{ProductID: 2, Code: "DUP"}); !errors.Is(err, domain.ErrCodeExists) {
		t.Errorf("expected ErrCodeExists, got %v", err)
	}
}
