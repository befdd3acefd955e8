// internal/service/order/application/service_test.go
package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	carddomain "kamishop/internal/service/card/domain"
	cardmemory "kamishop/internal/service/card/infrastructure/memory"
	"kamishop/internal/service/order/domain"
	ordermemory "kamishop/internal/service/order/infrastructure/memory"
	"kamishop/internal/service/order/port"
	productapp "kamishop/internal/service/product/application"
	productdomain "kamishop/internal/service/product/domain"
	productmemory "kamishop/internal/service/product/infrastructure/memory"
)

type fixture struct {
	orders   *ordermemory.OrderRepository
	cards    *cardmemory.CardRepository
	products *productapp.ProductService
	svc      *OrderService

	productID int64
}

// 记录收到的发货事件，断言通知在事务提交后发出
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.DeliveredEvent
}

func (n *recordingNotifier) NotifyDelivered(_ context.Context, event domain.DeliveredEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newFixture(t *testing.T, notifiers ...*recordingNotifier) *fixture {
	t.Helper()
	orders := ordermemory.NewOrderRepository()
	cards := cardmemory.NewCardRepository()
	productRepo := productmemory.NewProductRepository()
	productSvc := productapp.NewProductService(productRepo, cards)

	tracer := noop.NewTracerProvider().Tracer("test")
	var ports []port.DeliveryNotifier
	for _, n := range notifiers {
		ports = append(ports, n)
	}
	svc := NewOrderService(orders, cards, productSvc, ordermemory.NewTxRunner(), tracer, ports...)

	p, err := productSvc.Create(context.Background(), "Game Key", "", 19.9, "usdt")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return &fixture{orders: orders, cards: cards, products: productSvc, svc: svc, productID: p.ID}
}

func (f *fixture) addCards(t *testing.T, codes ...string) {
	t.Helper()
	for _, code := range codes {
		card := &carddomain.Card{ProductID: f.productID, Code: code}
		if err := f.cards.Insert(context.Background(), card); err != nil {
			t.Fatalf("insert card %s: %v", code, err)
		}
	}
}

// backdate 把订单的创建时间拨回 age 之前，模拟过期未付单
func backdate(t *testing.T, repo *ordermemory.OrderRepository, orderID string, age time.Duration) {
	t.Helper()
	ctx := context.Background()
	order, err := repo.FindByOrderID(ctx, orderID)
	if err != nil {
		t.Fatalf("backdate %s: %v", orderID, err)
	}
	order.CreatedAt = time.Now().Add(-age)
	if err := repo.Update(ctx, order); err != nil {
		t.Fatalf("backdate update: %v", err)
	}
}

func (f *fixture) createPendingOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		ProductID: f.productID,
		QueryKey:  "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestHandlePaymentResultDeliversCard(t *testing.T) {
	notifier := &recordingNotifier{}
	f := newFixture(t, notifier)
	f.addCards(t, "CODE-AAA")
	order := f.createPendingOrder(t)
	ctx := context.Background()

	if err := f.svc.HandlePaymentResult(ctx, order.OrderID, true); err != nil {
		t.Fatalf("handle payment: %v", err)
	}

	got, err := f.svc.GetByOrderID(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.StatusDelivered || !got.IsDelivered {
		t.Fatalf("order not delivered: status=%s delivered=%v", got.Status, got.IsDelivered)
	}
	if got.DeliveredCardCode != "CODE-AAA" {
		t.Errorf("unexpected card code %q", got.DeliveredCardCode)
	}
	if notifier.count() != 1 {
		t.Errorf("expected 1 delivery notification, got %d", notifier.count())
	}

	// 卡密侧也要盖上订单号
	card, err := f.cards.FindByCode(ctx, "CODE-AAA")
	if err != nil {
		t.Fatalf("find card: %v", err)
	}
	if !card.IsUsed || card.OrderID != order.OrderID {
		t.Errorf("card not stamped: used=%v order=%s", card.IsUsed, card.OrderID)
	}

	// 计数重算：0 张未用，1 张已售
	p, _ := f.products.Get(ctx, f.productID)
	if p.CardCount != 0 || p.SoldCount != 1 {
		t.Errorf("counters: card=%d sold=%d", p.CardCount, p.SoldCount)
	}
}

func TestHandlePaymentResultUnpaidIsNoop(t *testing.T) {
	f := newFixture(t)
	f.addCards(t, "CODE-AAA")
	order := f.createPendingOrder(t)
	ctx := context.Background()

	if err := f.svc.HandlePaymentResult(ctx, order.OrderID, false); err != nil {
		t.Fatalf("handle unpaid: %v", err)
	}
	got, _ := f.svc.GetByOrderID(ctx, order.OrderID)
	if got.Status != domain.StatusPending {
		t.Errorf("unpaid event must not advance the order, got %s", got.Status)
	}
}

func TestReplayedPaymentDeliversOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	f := newFixture(t, notifier)
	f.addCards(t, "CODE-AAA", "CODE-BBB")
	order := f.createPendingOrder(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.svc.HandlePaymentResult(ctx, order.OrderID, true); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}

	got, _ := f.svc.GetByOrderID(ctx, order.OrderID)
	if got.DeliveredCardCode != "CODE-AAA" {
		t.Errorf("replay changed the delivered code: %q", got.DeliveredCardCode)
	}
	unused, _ := f.cards.CountUnused(ctx, f.productID)
	if unused != 1 {
		t.Errorf("replay consumed extra cards, %d unused left", unused)
	}
	if notifier.count() != 1 {
		t.Errorf("expected exactly 1 notification, got %d", notifier.count())
	}
}

func TestConcurrentPaymentsNeverShareACard(t *testing.T) {
	f := newFixture(t)
	f.addCards(t, "CODE-AAA", "CODE-BBB")
	ctx := context.Background()

	orders := make([]*domain.Order, 3)
	for i := range orders {
		orders[i] = f.createPendingOrder(t)
	}

	var wg sync.WaitGroup
	for _, o := range orders {
		o := o
		for i := 0; i < 4; i++ { // 每单的支付事件重复投递 4 次
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = f.svc.HandlePaymentResult(ctx, o.OrderID, true)
			}()
		}
	}
	wg.Wait()

	// 两张卡只能喂饱两单，第三单停在 PAID
	deliveredCodes := make(map[string]string)
	var paidUndelivered int
	for _, o := range orders {
		got, err := f.svc.GetByOrderID(ctx, o.OrderID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		switch {
		case got.IsDelivered:
			if prev, taken := deliveredCodes[got.DeliveredCardCode]; taken {
				t.Fatalf("card %s assigned to both %s and %s", got.DeliveredCardCode, prev, got.OrderID)
			}
			deliveredCodes[got.DeliveredCardCode] = got.OrderID
		case got.Status == domain.StatusPaid:
			paidUndelivered++
		default:
			t.Errorf("order %s in unexpected state %s", got.OrderID, got.Status)
		}
	}
	if len(deliveredCodes) != 2 || paidUndelivered != 1 {
		t.Fatalf("expected 2 delivered + 1 waiting, got %d delivered, %d waiting", len(deliveredCodes), paidUndelivered)
	}

	unused, _ := f.cards.CountUnused(ctx, f.productID)
	if unused != 0 {
		t.Errorf("expected empty pool, %d unused left", unused)
	}
}

func TestReconciliationDrainsBacklog(t *testing.T) {
	f := newFixture(t)
	order := f.createPendingOrder(t)
	ctx := context.Background()

	// 池子是空的：支付成功但发不了货，订单停在 PAID
	if err := f.svc.HandlePaymentResult(ctx, order.OrderID, true); err != nil {
		t.Fatalf("handle payment: %v", err)
	}
	got, _ := f.svc.GetByOrderID(ctx, order.OrderID)
	if got.Status != domain.StatusPaid || got.IsDelivered {
		t.Fatalf("expected PAID waiting for stock, got %s", got.Status)
	}

	// 空池时对账无事可做
	n, err := f.svc.ProcessUndelivered(ctx)
	if err != nil || n != 0 {
		t.Fatalf("reconcile on empty pool: n=%d err=%v", n, err)
	}

	// 补货后对账把积压清掉
	f.addCards(t, "CODE-AAA")
	n, err = f.svc.ProcessUndelivered(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	got, _ = f.svc.GetByOrderID(ctx, order.OrderID)
	if !got.IsDelivered || got.DeliveredCardCode != "CODE-AAA" {
		t.Errorf("backlog order not delivered: %+v", got)
	}
}

func TestCleanupRemovesOnlyStalePending(t *testing.T) {
	f := newFixture(t)
	f.addCards(t, "CODE-AAA")
	ctx := context.Background()

	stale := f.createPendingOrder(t)
	fresh := f.createPendingOrder(t)
	paid := f.createPendingOrder(t)
	if err := f.svc.HandlePaymentResult(ctx, paid.OrderID, true); err != nil {
		t.Fatalf("pay order: %v", err)
	}

	// 把一单的创建时间拨回 25 小时前
	backdate(t, f.orders, stale.OrderID, 25*time.Hour)

	deleted, err := f.svc.CleanupUnpaidOrders(ctx, 24)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
	if _, err := f.svc.GetByOrderID(ctx, stale.OrderID); err == nil {
		t.Error("stale pending order survived cleanup")
	}
	if _, err := f.svc.GetByOrderID(ctx, fresh.OrderID); err != nil {
		t.Errorf("fresh pending order deleted: %v", err)
	}
	if _, err := f.svc.GetByOrderID(ctx, paid.OrderID); err != nil {
		t.Errorf("paid order deleted: %v", err)
	}

	// 第二轮没有新的过期单
	deleted, err = f.svc.CleanupUnpaidOrders(ctx, 24)
	if err != nil || deleted != 0 {
		t.Errorf("second sweep: deleted=%d err=%v", deleted, err)
	}
}

func TestUpdateStatusAdminPaths(t *testing.T) {
	f := newFixture(t)
	f.addCards(t, "CODE-AAA")
	ctx := context.Background()

	cancelMe := f.createPendingOrder(t)
	if _, err := f.svc.UpdateStatus(ctx, cancelMe.OrderID, domain.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := f.svc.GetByOrderID(ctx, cancelMe.OrderID)
	if got.Status != domain.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}

	payMe := f.createPendingOrder(t)
	updated, err := f.svc.UpdateStatus(ctx, payMe.OrderID, domain.StatusPaid)
	if err != nil {
		t.Fatalf("mark paid via admin: %v", err)
	}
	if !updated.IsDelivered {
		t.Error("admin paid transition should trigger delivery")
	}

	// 直接设置 DELIVERED 不允许
	another := f.createPendingOrder(t)
	if _, err := f.svc.UpdateStatus(ctx, another.OrderID, domain.StatusDelivered); err == nil {
		t.Error("direct DELIVERED transition must be rejected")
	}
}

func TestQueryByKeyReturnsLatestAndAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.createPendingOrder(t)
	backdate(t, f.orders, first.OrderID, time.Hour)
	second := f.createPendingOrder(t)

	latest, err := f.svc.GetLatestByQueryKey(ctx, "buyer@example.com")
	if err != nil {
		t.Fatalf("latest by key: %v", err)
	}
	if latest.OrderID != second.OrderID {
		t.Errorf("expected latest %s, got %s", second.OrderID, latest.OrderID)
	}

	all, err := f.svc.ListByQueryKey(ctx, "buyer@example.com")
	if err != nil {
		t.Fatalf("all by key: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}

	if _, err := f.svc.GetLatestByQueryKey(ctx, "nobody@example.com"); err == nil {
		t.Error("expected not-found for unknown query key")
	}
}

func TestCreateOrderRequiresActiveProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, _ := f.products.Get(ctx, f.productID)
	p.IsActive = false
	if err := f.products.Save(ctx, p); err != nil {
		t.Fatalf("deactivate product: %v", err)
	}

	_, err := f.svc.CreateOrder(ctx, CreateOrderInput{ProductID: f.productID})
	if !errors.Is(err, productdomain.ErrProductInactive) {
		t.Fatalf("expected ErrProductInactive, got %v", err)
	}
}
