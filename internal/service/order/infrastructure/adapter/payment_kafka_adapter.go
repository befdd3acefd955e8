// internal/service/order/infrastructure/adapter/payment_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"kamishop/internal/pkg/mq"
	"kamishop/internal/service/order/application"
	"kamishop/internal/service/order/domain"
	"kamishop/internal/service/order/port"
)

// PaymentConsumerAdapter 是一个驱动适配器：监听支付结果主题，
// 把事件交给订单应用服务。支付网关会重复投递，先过一层去重快路径，
// 真正的幂等由发货事务兜底。
type PaymentConsumerAdapter struct {
	reader *kafka.Reader
	appSvc *application.OrderService
	guard  port.ReplayGuard // 可为 nil，此时每个事件都直接进入应用服务
	wg     sync.WaitGroup
}

func NewPaymentConsumerAdapter(reader *kafka.Reader, appSvc *application.OrderService, guard port.ReplayGuard) *PaymentConsumerAdapter {
	return &PaymentConsumerAdapter{
		reader: reader,
		appSvc: appSvc,
		guard:  guard,
	}
}

// Start 开始监听支付结果主题。这是一个长期运行的方法。
func (a *PaymentConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("Payment consumer started for topic '%s'.", a.reader.Config().Topic)
		for {
			// 使用FetchMessage而不是ReadMessage，以便控制提交时机
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Printf("Payment consumer shutting down.")
					return
				}
				log.Printf("ERROR: could not read payment message: %v. Retrying...", err)
				time.Sleep(1 * time.Second) // 避免快速失败循环
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				log.Printf("ERROR: failed to commit payment message: %v", err)
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (a *PaymentConsumerAdapter) Stop() {
	a.reader.Close()
	a.wg.Wait()
	log.Printf("Payment consumer stopped.")
}

func (a *PaymentConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	var event domain.PaymentResultEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("ERROR: failed to unmarshal payment event: %v", err)
		return // 毒消息，提交后丢弃
	}
	if event.OrderID == "" {
		log.Printf("ERROR: payment event without order id, dropping.")
		return
	}

	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	tracer := otel.Tracer("payment-consumer")
	ctx, span := tracer.Start(ctx, "payment.ProcessEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	if a.guard != nil && event.EventID != "" {
		first, err := a.guard.FirstSeen(ctx, event.EventID)
		if err != nil {
			// 去重层故障时放行：重复进入应用服务也只是一次加锁后的空转
			log.Printf("WARN: replay guard unavailable, letting event %s through: %v", event.EventID, err)
		} else if !first {
			log.Printf("INFO: [Order: %s] Duplicate payment event %s skipped.", event.OrderID, event.EventID)
			return
		}
	}

	if err := a.appSvc.HandlePaymentResult(ctx, event.OrderID, event.Paid); err != nil {
		span.RecordError(err)
		log.Printf("ERROR: [Order: %s] Failed to handle payment result: %v", event.OrderID, err)
	}
}
