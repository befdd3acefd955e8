// internal/service/card/application/service.go
package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"kamishop/internal/service/card/domain"
	productapp "kamishop/internal/service/product/application"
)

// 生成卡密时与全局唯一约束碰撞的重试上限。随机空间是 16^20，
// 撞满这个次数说明出的问题不在随机数上。
const maxGenerateRetries = 10

// SkipReason 记录一行被跳过的导入卡密及原因。
type SkipReason struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// ImportResult 是批量导入的结构化结果：部分成功是常态，
// 单行失败绝不拖垮整个批次。
type ImportResult struct {
	Accepted []*domain.Card `json:"accepted"`
	Skipped  []SkipReason   `json:"skipped"`
}

// ImportError 在整批一行都没导入成功时返回，带上全部跳过原因。
type ImportError struct {
	Skipped []SkipReason
}

func (e *ImportError) Error() string {
	reasons := make([]string, 0, len(e.Skipped))
	for _, s := range e.Skipped {
		reasons = append(reasons, fmt.Sprintf("%s (%s)", s.Code, s.Reason))
	}
	return "no card codes imported: " + strings.Join(reasons, ", ")
}

// CardService 管理卡密池：生成、导入、删除、计数。
// 所有会改变池子的操作完成后都触发商品缓存计数的重算。
type CardService struct {
	cards    domain.Repository
	products *productapp.ProductService
	rule     domain.CodeRule // 可为 nil，表示不启用格式规则
}

func NewCardService(cards domain.Repository, products *productapp.ProductService, rule domain.CodeRule) *CardService {
	return &CardService{cards: cards, products: products, rule: rule}
}

// Generate 为商品生成 count 个全局唯一的卡密。
// 与唯一约束碰撞时换一个随机值重试，直到每一个都唯一。
func (s *CardService) Generate(ctx context.Context, productID int64, count int, prefix string) ([]*domain.Card, error) {
	if count <= 0 {
		return nil, fmt.Errorf("generate count must be positive, got %d", count)
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}

	cards := make([]*domain.Card, 0, count)
	for i := 0; i < count; i++ {
		card, err := s.generateOne(ctx, productID, prefix)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	if err := s.products.Recount(ctx, productID); err != nil {
		return nil, err
	}
	log.Printf("INFO: [Product: %d] Generated %d card codes.", productID, len(cards))
	return cards, nil
}

func (s *CardService) generateOne(ctx context.Context, productID int64, prefix string) (*domain.Card, error) {
	for attempt := 0; attempt < maxGenerateRetries; attempt++ {
		card := &domain.Card{
			ProductID: productID,
			Code:      randomCode(prefix),
		}
		err := s.cards.Insert(ctx, card)
		if err == nil {
			return card, nil
		}
		if pkgerrors.Is(err, domain.ErrCodeExists) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to generate a unique card code after %d attempts", maxGenerateRetries)
}

// Import 批量导入卡密。逐行校验：空行跳过不计数，
// 长度越界、格式规则不过、批内重复、库内已存在的行记入跳过原因。
// 一行都没成功且存在跳过行时整体报错。
func (s *CardService) Import(ctx context.Context, productID int64, lines []string) (*ImportResult, error) {
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("import lines must not be empty")
	}

	result := &ImportResult{}
	seen := make(map[string]struct{})

	for _, line := range lines {
		code := strings.TrimSpace(line)
		if code == "" {
			continue
		}

		if reason := s.vetCode(ctx, code, seen); reason != "" {
			result.Skipped = append(result.Skipped, SkipReason{Code: code, Reason: reason})
			continue
		}
		seen[code] = struct{}{}

		card := &domain.Card{ProductID: productID, Code: code}
		if err := s.cards.Insert(ctx, card); err != nil {
			if pkgerrors.Is(err, domain.ErrCodeExists) {
				result.Skipped = append(result.Skipped, SkipReason{Code: code, Reason: "already exists"})
				continue
			}
			return nil, err
		}
		result.Accepted = append(result.Accepted, card)
	}

	if len(result.Accepted) == 0 && len(result.Skipped) > 0 {
		return nil, &ImportError{Skipped: result.Skipped}
	}

	if err := s.products.Recount(ctx, productID); err != nil {
		return nil, err
	}
	log.Printf("INFO: [Product: %d] Imported %d card codes, skipped %d.", productID, len(result.Accepted), len(result.Skipped))
	return result, nil
}

// vetCode 返回空串表示通过，否则返回跳过原因。
func (s *CardService) vetCode(ctx context.Context, code string, seen map[string]struct{}) string {
	if len(code) < domain.MinCodeLength {
		return "too short"
	}
	if len(code) > domain.MaxCodeLength {
		return fmt.Sprintf("longer than %d characters", domain.MaxCodeLength)
	}
	if s.rule != nil {
		ok, err := s.rule.Validate(code)
		if err != nil {
			return "rule evaluation failed: " + err.Error()
		}
		if !ok {
			return "rejected by format rule"
		}
	}
	if _, dup := seen[code]; dup {
		return "duplicate in batch"
	}
	if _, err := s.cards.FindByCode(ctx, code); err == nil {
		return "already exists"
	}
	return ""
}

// Delete 删除一张未使用的卡密并重算商品缓存计数。
// 已使用的卡密承载订单的审计历史，不允许删除。
func (s *CardService) Delete(ctx context.Context, cardID int64) error {
	card, err := s.cards.FindByID(ctx, cardID)
	if err != nil {
		return err
	}
	if card.IsUsed {
		return pkgerrors.Wrapf(domain.ErrCardAlreadyUsed, "card %d is consumed by order %s", cardID, card.OrderID)
	}
	if err := s.cards.Delete(ctx, cardID); err != nil {
		return err
	}
	return s.products.Recount(ctx, card.ProductID)
}

// ListByProduct 返回某商品的全部卡密（管理端视图）。
func (s *CardService) ListByProduct(ctx context.Context, productID int64) ([]*domain.Card, error) {
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.cards.ListByProduct(ctx, productID)
}

func (s *CardService) CountUnused(ctx context.Context, productID int64) (int64, error) {
	return s.cards.CountUnused(ctx, productID)
}

func (s *CardService) CountUsed(ctx context.Context, productID int64) (int64, error) {
	return s.cards.CountUsed(ctx, productID)
}

// randomCode 生成一个大写随机卡密，带前缀时形如 PREFIX-XXXXXXXXXXXXXXXX。
func randomCode(prefix string) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if prefix != "" {
		return prefix + "-" + raw[:16]
	}
	return raw[:20]
}
