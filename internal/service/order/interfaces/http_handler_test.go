// internal/service/order/interfaces/http_handler_test.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	accountapp "kamishop/internal/service/account/application"
	accountmemory "kamishop/internal/service/account/infrastructure/memory"
	cardmemory "kamishop/internal/service/card/infrastructure/memory"
	orderapp "kamishop/internal/service/order/application"
	ordermemory "kamishop/internal/service/order/infrastructure/memory"
	productapp "kamishop/internal/service/product/application"
	productmemory "kamishop/internal/service/product/infrastructure/memory"
)

// trackingLock 记录加解锁次数，并断言操作发生在持锁期间
type trackingLock struct {
	mu      sync.Mutex
	held    bool
	locks   int
	unlocks int
}

func (l *trackingLock) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	l.locks++
	return true, nil
}

func (l *trackingLock) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
	l.locks++
	return nil
}

func (l *trackingLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.unlocks++
	return nil
}

type handlerFixture struct {
	handler       *OrderHandler
	mux           *http.ServeMux
	orders        *ordermemory.OrderRepository
	orderSvc      *orderapp.OrderService
	cleanupLock   *trackingLock
	reconcileLock *trackingLock
	productID     int64
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	orders := ordermemory.NewOrderRepository()
	cards := cardmemory.NewCardRepository()
	productRepo := productmemory.NewProductRepository()
	productSvc := productapp.NewProductService(productRepo, cards)
	tracer := noop.NewTracerProvider().Tracer("test")
	orderSvc := orderapp.NewOrderService(orders, cards, productSvc, ordermemory.NewTxRunner(), tracer)

	users := accountmemory.NewUserRepository()
	accountSvc := accountapp.NewAccountService(users)
	if err := accountSvc.EnsureDefaultAdmin(context.Background(), "admin", "admin123"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	p, err := productSvc.Create(context.Background(), "Game Key", "", 9.9, "usdt")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	cleanupLock := &trackingLock{}
	reconcileLock := &trackingLock{}
	handler := NewOrderHandler(orderSvc, nil, productSvc, accountSvc, nil, nil, cleanupLock, reconcileLock)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &handlerFixture{
		handler:       handler,
		mux:           mux,
		orders:        orders,
		orderSvc:      orderSvc,
		cleanupLock:   cleanupLock,
		reconcileLock: reconcileLock,
		productID:     p.ID,
	}
}

func (f *handlerFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestManualCleanupHoldsLock(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	stale, err := f.orderSvc.CreateOrder(ctx, orderapp.CreateOrderInput{ProductID: f.productID})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	old, err := f.orders.FindByOrderID(ctx, stale.OrderID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	old.CreatedAt = time.Now().Add(-25 * time.Hour)
	if err := f.orders.Update(ctx, old); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	rec := f.post(t, "/api/admin/orders/cleanup", `{"hours":24}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", resp.Deleted)
	}

	if f.cleanupLock.locks != 1 || f.cleanupLock.unlocks != 1 {
		t.Errorf("lock not held around manual run: locks=%d unlocks=%d", f.cleanupLock.locks, f.cleanupLock.unlocks)
	}
	if f.cleanupLock.held {
		t.Error("lock leaked after request")
	}
}

func TestManualReconcileHoldsLock(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.post(t, "/api/admin/orders/reconcile", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile status %d: %s", rec.Code, rec.Body.String())
	}
	if f.reconcileLock.locks != 1 || f.reconcileLock.unlocks != 1 {
		t.Errorf("lock not held around manual run: locks=%d unlocks=%d", f.reconcileLock.locks, f.reconcileLock.unlocks)
	}
	if f.cleanupLock.locks != 0 {
		t.Error("reconcile must not touch the cleanup lock")
	}
}

func TestAdminLogin(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.post(t, "/api/admin/login", `{"username":"admin","password":"admin123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Username != "admin" || !resp.IsAdmin {
		t.Errorf("unexpected principal: %+v", resp)
	}

	rec = f.post(t, "/api/admin/login", `{"username":"admin","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", rec.Code)
	}
}
