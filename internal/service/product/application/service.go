// internal/service/product/application/service.go
package application

import (
	"context"

	"github.com/rs/zerolog/log"

	"kamishop/internal/service/product/domain"
)

// CardCounter 是商品服务对卡密池的只读视角，
// 重算缓存计数时用它取真实值。由卡密仓储实现。
type CardCounter interface {
	CountUnused(ctx context.Context, productID int64) (int64, error)
	CountUsed(ctx context.Context, productID int64) (int64, error)
}

// ProductService 是商品侧的简单数据访问服务。
// 商品目录的增删改不包含业务不变量，唯一的例外是缓存计数的重算。
type ProductService struct {
	products domain.Repository
	counter  CardCounter
}

func NewProductService(products domain.Repository, counter CardCounter) *ProductService {
	return &ProductService{products: products, counter: counter}
}

func (s *ProductService) Create(ctx context.Context, name, description string, price float64, paymentType string) (*domain.Product, error) {
	p, err := domain.NewProduct(name, description, price, paymentType)
	if err != nil {
		return nil, err
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProductService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

func (s *ProductService) List(ctx context.Context, activeOnly bool) ([]*domain.Product, error) {
	return s.products.List(ctx, activeOnly)
}

func (s *ProductService) Save(ctx context.Context, p *domain.Product) error {
	return s.products.Save(ctx, p)
}

// Recount 从卡密池整体重算某个商品的缓存计数并落库。
// 读后写而不是原地增减：并发的池变更不会让计数漂移，
// 最多让某次重算的结果早一拍被下一次覆盖。
func (s *ProductService) Recount(ctx context.Context, productID int64) error {
	unused, err := s.counter.CountUnused(ctx, productID)
	if err != nil {
		return err
	}
	used, err := s.counter.CountUsed(ctx, productID)
	if err != nil {
		return err
	}
	if err := s.products.UpdateCounters(ctx, productID, unused, used); err != nil {
		return err
	}
	log.Debug().Int64("product_id", productID).Int64("card_count", unused).Int64("sold_count", used).
		Msg("product counters recomputed")
	return nil
}
