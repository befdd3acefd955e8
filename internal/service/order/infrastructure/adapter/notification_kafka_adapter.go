// internal/service/order/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"kamishop/internal/pkg/mq"
	"kamishop/internal/service/order/domain"
)

// NotificationKafkaAdapter 把发货事件写入通知主题（对账机器人、
// 邮件服务等下游自行消费）。实现 port.DeliveryNotifier。
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

// NotifyDelivered 实现 port.DeliveryNotifier。
// 发货的事实以数据库为准，通知失败只记日志不回滚。
func (a *NotificationKafkaAdapter) NotifyDelivered(ctx context.Context, event domain.DeliveredEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: [Order: %s] Failed to marshal delivery notification: %v", event.OrderID, err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	if err := a.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("ERROR: [Order: %s] Failed to publish delivery notification: %v", event.OrderID, err)
		return
	}
	log.Printf("INFO: [Order: %s] Delivery notification published.", event.OrderID)
}
