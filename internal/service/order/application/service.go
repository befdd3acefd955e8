// internal/service/order/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kamishop/internal/pkg/metrics"
	carddomain "kamishop/internal/service/card/domain"
	"kamishop/internal/service/order/domain"
	"kamishop/internal/service/order/port"
	productapp "kamishop/internal/service/product/application"
	productdomain "kamishop/internal/service/product/domain"
)

// OrderService 驱动订单走完状态机，并在支付确认时调用分配器发货。
// 发货的事务边界：读订单 -> 占用卡密 -> 写订单在同一个数据库事务里，
// 中途崩溃不会留下"卡密已用但无主"或"订单已发货但没卡密"的半成品。
type OrderService struct {
	orders   domain.Repository
	cards    carddomain.Repository
	products *productapp.ProductService
	tx       port.TxRunner

	notifiers []port.DeliveryNotifier
	tracer    trace.Tracer
}

func NewOrderService(
	orders domain.Repository,
	cards carddomain.Repository,
	products *productapp.ProductService,
	tx port.TxRunner,
	tracer trace.Tracer,
	notifiers ...port.DeliveryNotifier,
) *OrderService {
	return &OrderService{
		orders:    orders,
		cards:     cards,
		products:  products,
		tx:        tx,
		tracer:    tracer,
		notifiers: notifiers,
	}
}

// CreateOrderInput 是购买请求的载荷。
type CreateOrderInput struct {
	ProductID     int64
	PaymentType   string
	WalletAddress string
	QueryKey      string
}

// CreateOrder 创建一个待支付订单。订单号生成一次，对外稳定。
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder")
	defer span.End()

	product, err := s.products.Get(ctx, input.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.Wrapf(productdomain.ErrProductInactive, "product %d", input.ProductID)
	}

	paymentType := input.PaymentType
	if paymentType == "" {
		paymentType = product.PaymentType
	}

	orderID := uuid.NewString()
	order, err := domain.NewOrder(orderID, product.ID, product.Price, paymentType, input.WalletAddress, input.QueryKey)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.OrderID))
	log.Printf("INFO: [Order: %s] Created for product %d, amount %.2f.", order.OrderID, order.ProductID, order.Amount)
	return order, nil
}

// HandlePaymentResult 处理一次支付结果事件。同一事件可能被重复投递：
// 订单行在事务内加排他锁，重放者排队醒来后看到终态直接返回，
// 绝不会为同一订单占用第二张卡密。
func (s *OrderService) HandlePaymentResult(ctx context.Context, orderID string, paid bool) error {
	ctx, span := s.tracer.Start(ctx, "order.HandlePaymentResult", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Bool("payment.paid", paid))

	if !paid {
		metrics.PaymentEvents.WithLabelValues("unpaid").Inc()
		log.Printf("INFO: [Order: %s] Payment event resolved to unpaid, order stays PENDING.", orderID)
		return nil
	}

	var delivered *domain.Order
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case domain.StatusDelivered, domain.StatusCancelled:
			// 重放或迟到事件，无事可做
			return nil
		case domain.StatusPending:
			if err := order.MarkPaid(); err != nil {
				return err
			}
			if err := s.orders.Update(ctx, order); err != nil {
				return err
			}
		case domain.StatusPaid:
			// 已付但未发货：上一轮缺货，本次事件顺便重试
		}

		ok, err := s.deliverLocked(ctx, order)
		if err != nil {
			return err
		}
		if ok {
			delivered = order
		}
		return nil
	})
	if err != nil {
		metrics.PaymentEvents.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment handling failed")
		return err
	}

	metrics.PaymentEvents.WithLabelValues("paid").Inc()
	if delivered != nil {
		s.afterDelivery(ctx, delivered)
	}
	return nil
}

// UpdateStatus 是管理端的状态变更入口。推到 PAID 会顺带尝试发货，
// 推到 CANCELLED 只对 PENDING 订单生效。逆行或跳跃直接报错。
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("order.status", string(status)))

	var result *domain.Order
	var delivered *domain.Order
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		switch status {
		case domain.StatusPaid:
			if order.Status != domain.StatusPaid {
				if err := order.MarkPaid(); err != nil {
					return err
				}
				if err := s.orders.Update(ctx, order); err != nil {
					return err
				}
			}
			if !order.IsDelivered {
				ok, err := s.deliverLocked(ctx, order)
				if err != nil {
					return err
				}
				if ok {
					delivered = order
				}
			}
		case domain.StatusCancelled:
			if err := order.Cancel(); err != nil {
				return err
			}
			if err := s.orders.Update(ctx, order); err != nil {
				return err
			}
		default:
			return pkgerrors.Wrapf(domain.ErrInvalidTransition, "status %s cannot be set directly", status)
		}

		result = order
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if delivered != nil {
		s.afterDelivery(ctx, delivered)
	}
	return result, nil
}

// Deliver 对一个已支付订单发起发货。对已发货订单调用是无副作用的
// 成功返回，这让它可以被对账批次无脑重复调用。
// 返回值表示本次调用结束后订单是否处于已发货状态。
func (s *OrderService) Deliver(ctx context.Context, orderID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "order.Deliver")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var ok bool
	var delivered *domain.Order
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		done, err := s.deliverLocked(ctx, order)
		if err != nil {
			return err
		}
		if done {
			delivered = order
		}
		ok = order.IsDelivered
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if delivered != nil {
		s.afterDelivery(ctx, delivered)
	}
	return ok, nil
}

// deliverLocked 在调用方持有订单行锁的事务内执行分配。
// 返回 true 表示本次调用完成了发货动作。
func (s *OrderService) deliverLocked(ctx context.Context, order *domain.Order) (bool, error) {
	if order.IsDelivered {
		return false, nil // 幂等：已发货即成功
	}
	if order.Status != domain.StatusPaid {
		return false, pkgerrors.Wrapf(domain.ErrInvalidTransition,
			"delivery requires a paid order, %s is %s", order.OrderID, order.Status)
	}

	card, err := s.cards.Claim(ctx, order.ProductID, order.OrderID)
	if err != nil {
		if pkgerrors.Is(err, carddomain.ErrNoStock) {
			// 池子空了：订单停在 PAID，等补货后对账重试
			metrics.AllocationEmpty.Inc()
			log.Printf("WARN: [Order: %s] No unused card code for product %d, order stays PAID.", order.OrderID, order.ProductID)
			return false, nil
		}
		return false, err
	}

	if err := order.MarkDelivered(card.Code, time.Now()); err != nil {
		// 行锁在手还走到这里，说明不变量已经被破坏，让事务回滚
		return false, err
	}
	if err := s.orders.Update(ctx, order); err != nil {
		return false, err
	}

	metrics.CodesAllocated.Inc()
	metrics.OrdersDelivered.Inc()
	return true, nil
}

// afterDelivery 做发货事务提交后的收尾：重算商品缓存计数
// （读后写，容忍并发的池子变更），再把事件广播出去。
func (s *OrderService) afterDelivery(ctx context.Context, order *domain.Order) {
	if err := s.products.Recount(ctx, order.ProductID); err != nil {
		log.Printf("ERROR: [Order: %s] Failed to recount product %d counters: %v", order.OrderID, order.ProductID, err)
	}

	event := domain.DeliveredEvent{
		OrderID:     order.OrderID,
		ProductID:   order.ProductID,
		CardCode:    order.DeliveredCardCode,
		DeliveredAt: *order.DeliveredAt,
	}
	for _, n := range s.notifiers {
		n.NotifyDelivered(ctx, event)
	}
	log.Printf("INFO: [Order: %s] Delivered card code for product %d.", order.OrderID, order.ProductID)
}

// ProcessUndelivered 扫描所有已支付未发货的订单并逐个重试发货。
// 补货之后用它清空积压。返回本轮成功发货的数量。
func (s *OrderService) ProcessUndelivered(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "order.ProcessUndelivered")
	defer span.End()

	paid, err := s.orders.ListByStatus(ctx, domain.StatusPaid)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	deliveredCount := 0
	for _, order := range paid {
		if order.IsDelivered {
			continue
		}
		ok, err := s.Deliver(ctx, order.OrderID)
		if err != nil {
			log.Printf("ERROR: [Order: %s] Reconciliation delivery failed: %v", order.OrderID, err)
			continue
		}
		if ok {
			deliveredCount++
		}
	}

	span.SetAttributes(attribute.Int("orders.delivered", deliveredCount))
	if deliveredCount > 0 {
		log.Printf("INFO: Reconciliation delivered %d backlogged orders.", deliveredCount)
	}
	return deliveredCount, nil
}

// CleanupUnpaidOrders 删除创建时间早于 now-hours 且仍在待支付的订单。
// 单条事务性删除语句，限定条件在删除时刻求值：并发刚转成 PAID 的
// 订单不满足条件，不会被删。返回删除数量。
func (s *OrderService) CleanupUnpaidOrders(ctx context.Context, hours int) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "order.CleanupUnpaidOrders")
	defer span.End()

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	deleted, err := s.orders.DeleteUnpaidBefore(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	metrics.OrdersSwept.Add(float64(deleted))
	span.SetAttributes(attribute.Int64("orders.deleted", deleted))
	if deleted > 0 {
		log.Printf("INFO: Cleanup removed %d unpaid orders older than %d hours.", deleted, hours)
	}
	return deleted, nil
}

// --- 查询面 ---

func (s *OrderService) GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.FindByOrderID(ctx, orderID)
}

func (s *OrderService) GetLatestByQueryKey(ctx context.Context, queryKey string) (*domain.Order, error) {
	return s.orders.FindLatestByQueryKey(ctx, queryKey)
}

func (s *OrderService) ListByQueryKey(ctx context.Context, queryKey string) ([]*domain.Order, error) {
	return s.orders.FindAllByQueryKey(ctx, queryKey)
}

func (s *OrderService) ListUndelivered(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.ListUndelivered(ctx)
}

func (s *OrderService) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	return s.orders.ListByStatus(ctx, status)
}

// ListPage 分页查询订单，并为每单装配商品信息。
func (s *OrderService) ListPage(ctx context.Context, status domain.Status, page, size int) ([]*domain.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}
	orders, total, err := s.orders.ListPage(ctx, status, (page-1)*size, size)
	if err != nil {
		return nil, 0, err
	}
	for _, order := range orders {
		product, err := s.products.Get(ctx, order.ProductID)
		if err == nil {
			order.Product = product
		}
	}
	return orders, total, nil
}
