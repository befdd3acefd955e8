// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 履约核心指标。全部是计数器：发货链路没有值得观测的时延分布，
// 回调量和清理量才是容量规划的输入。
var (
	CodesAllocated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kamishop_codes_allocated_total",
		Help: "Number of card codes successfully claimed for orders.",
	})

	AllocationEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kamishop_allocation_empty_total",
		Help: "Number of delivery attempts that found no unused code.",
	})

	OrdersDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kamishop_orders_delivered_total",
		Help: "Number of orders that reached DELIVERED.",
	})

	OrdersSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kamishop_orders_swept_total",
		Help: "Number of stale pending orders deleted by the cleanup sweep.",
	})

	PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kamishop_payment_events_total",
		Help: "Payment result events by outcome.",
	}, []string{"result"})
)
