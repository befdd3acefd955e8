// internal/service/order/domain/order_test.go
package domain

import (
	"errors"
	"testing"
	"time"
)

func newPendingOrder(t *testing.T) *Order {
	t.Helper()
	o, err := NewOrder("order-1", 1, 9.9, "usdt", "0xabc", "buyer@example.com")
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return o
}

func TestNewOrderValidation(t *testing.T) {
	if _, err := NewOrder("", 1, 9.9, "usdt", "", ""); err == nil {
		t.Error("expected error for empty order id")
	}
	if _, err := NewOrder("order-1", 0, 9.9, "usdt", "", ""); err == nil {
		t.Error("expected error for missing product")
	}
	if _, err := NewOrder("order-1", 1, -1, "usdt", "", ""); err == nil {
		t.Error("expected error for negative amount")
	}

	o := newPendingOrder(t)
	if o.Status != StatusPending {
		t.Errorf("new order should be PENDING, got %s", o.Status)
	}
	if o.IsDelivered {
		t.Error("new order should not be delivered")
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Run("pending to paid to delivered", func(t *testing.T) {
		o := newPendingOrder(t)
		if err := o.MarkPaid(); err != nil {
			t.Fatalf("mark paid: %v", err)
		}
		if err := o.MarkDelivered("CODE-1", time.Now()); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
		if o.Status != StatusDelivered || !o.IsDelivered || o.DeliveredCardCode != "CODE-1" {
			t.Errorf("unexpected final state: %+v", o)
		}
		if o.DeliveredAt == nil {
			t.Error("delivered_at not recorded")
		}
	})

	t.Run("pending to cancelled", func(t *testing.T) {
		o := newPendingOrder(t)
		if err := o.Cancel(); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if o.Status != StatusCancelled {
			t.Errorf("expected CANCELLED, got %s", o.Status)
		}
	})

	t.Run("no backward or skipping moves", func(t *testing.T) {
		o := newPendingOrder(t)

		// 跳过支付直接发货
		if err := o.MarkDelivered("CODE-1", time.Now()); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("deliver pending: expected ErrInvalidTransition, got %v", err)
		}

		if err := o.MarkPaid(); err != nil {
			t.Fatalf("mark paid: %v", err)
		}
		// 已付订单不能取消、不能再次置为已付
		if err := o.Cancel(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("cancel paid: expected ErrInvalidTransition, got %v", err)
		}
		if err := o.MarkPaid(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("re-pay: expected ErrInvalidTransition, got %v", err)
		}

		if err := o.MarkDelivered("CODE-1", time.Now()); err != nil {
			t.Fatalf("mark delivered: %v", err)
		}
		// 已发货订单是终态
		if err := o.MarkDelivered("CODE-2", time.Now()); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("re-deliver: expected ErrInvalidTransition, got %v", err)
		}
		if o.DeliveredCardCode != "CODE-1" {
			t.Errorf("card code overwritten by rejected transition: %s", o.DeliveredCardCode)
		}
	})
}
