// internal/service/order/domain/event.go
package domain

import "time"

// PaymentResultEvent 是支付网关回传的支付结果。
// 同一笔支付可能被重复投递，消费方必须幂等处理。
type PaymentResultEvent struct {
	EventID string `json:"event_id"`
	OrderID string `json:"order_id"`
	Paid    bool   `json:"paid"`
}

// DeliveredEvent 在订单发货成功后对外广播（通知队列、管理端推送）。
type DeliveredEvent struct {
	OrderID     string    `json:"order_id"`
	ProductID   int64     `json:"product_id"`
	CardCode    string    `json:"card_code"`
	DeliveredAt time.Time `json:"delivered_at"`
}
