// internal/service/order/domain/order.go
package domain

import (
	"errors"
	"fmt"
	"time"

	productdomain "kamishop/internal/service/product/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition 表示有人试图让订单状态逆行或跳跃。
	// 这是不变量被破坏的信号，调用方必须把它暴露出去而不是吞掉。
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Status 定义了订单的生命周期状态，只允许向前流转：
// PENDING -> {PAID, CANCELLED}，PAID -> DELIVERED。
type Status string

const (
	StatusPending   Status = "PENDING"   // 待支付
	StatusPaid      Status = "PAID"      // 已支付（可能还在等库存）
	StatusDelivered Status = "DELIVERED" // 已发货
	StatusCancelled Status = "CANCELLED" // 已取消（仅管理端操作）
)

// Order 是订单聚合的根实体。OrderID 对外稳定，创建时生成一次。
// DeliveredCardCode 在发货时冗余落在订单上：即使卡密行日后被删，
// 订单侧的审计历史仍然完整。
type Order struct {
	ID                int64
	OrderID           string
	ProductID         int64
	Amount            float64
	PaymentType       string
	WalletAddress     string
	QueryKey          string
	Status            Status
	IsDelivered       bool
	DeliveredCardCode string
	DeliveredAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Product 仅在列表查询时按需装配，不参与持久化
	Product *productdomain.Product
}

// NewOrder 创建一个待支付订单。
func NewOrder(orderID string, productID int64, amount float64, paymentType, walletAddress, queryKey string) (*Order, error) {
	if orderID == "" {
		return nil, errors.New("order id must not be empty")
	}
	if productID <= 0 {
		return nil, errors.New("order must reference a product")
	}
	if amount < 0 {
		return nil, errors.New("order amount must not be negative")
	}
	now := time.Now()
	return &Order{
		OrderID:       orderID,
		ProductID:     productID,
		Amount:        amount,
		PaymentType:   paymentType,
		WalletAddress: walletAddress,
		QueryKey:      queryKey,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MarkPaid 将订单从待支付推进到已支付。
func (o *Order) MarkPaid() error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: cannot mark %s order %s as paid", ErrInvalidTransition, o.Status, o.OrderID)
	}
	o.Status = StatusPaid
	o.touch()
	return nil
}

// Cancel 取消订单。只有还没付款的订单可以取消。
func (o *Order) Cancel() error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: cannot cancel %s order %s", ErrInvalidTransition, o.Status, o.OrderID)
	}
	o.Status = StatusCancelled
	o.touch()
	return nil
}

// MarkDelivered 记录发货结果：卡密内容、发货时间，状态推进到已发货。
// 只能从已支付且未发货的订单出发。
func (o *Order) MarkDelivered(cardCode string, at time.Time) error {
	if o.Status != StatusPaid || o.IsDelivered {
		return fmt.Errorf("%w: cannot deliver order %s (status=%s, delivered=%v)",
			ErrInvalidTransition, o.OrderID, o.Status, o.IsDelivered)
	}
	o.IsDelivered = true
	o.DeliveredCardCode = cardCode
	o.DeliveredAt = &at
	o.Status = StatusDelivered
	o.touch()
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now()
}
