// internal/service/order/port/ports.go
package port

import (
	"context"

	"kamishop/internal/service/order/domain"
)

// TxRunner 提供事务边界。生产实现基于数据库事务，
// 测试实现用互斥锁串行化。
type TxRunner interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// DeliveryNotifier 把发货事件广播出去（Kafka 通知队列、WebSocket 推送）。
// 通知失败不回滚发货：发货的事实以数据库为准。
type DeliveryNotifier interface {
	NotifyDelivered(ctx context.Context, event domain.DeliveredEvent)
}

// PaymentVerifier 在处理支付回调前向支付网关二次确认。
// 回调内容可以伪造，网关的查询接口才是事实来源。
type PaymentVerifier interface {
	VerifyPaid(ctx context.Context, orderID string) (bool, error)
}

// ReplayGuard 对支付事件做一层快速去重。它只是快路径：
// 幂等的正确性由发货事务内的已发货判断兜底，DB 才是仲裁者。
type ReplayGuard interface {
	// FirstSeen 返回该事件是否第一次出现。
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}
