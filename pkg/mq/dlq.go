package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DLQExchangeName receives cascades that exhausted their attempts. Each
// routing key gets its own parked queue so an operator can inspect and
// replay them separately.
const DLQExchangeName = ExchangeName + ".dlq"

// Header keys set on parked messages.
const (
	HeaderOriginalError = "x-original-error"
	HeaderFailedAt      = "x-failed-at"
	HeaderAttempts      = "x-attempts"
	HeaderSourceKey     = "x-source-routing-key"
)

func DLQQueueName(routingKey string) string {
	return routingKey + ".dlq"
}

func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(DLQExchangeName, ExchangeKind, true, false, false, false, nil)
}

// DeclareDLQ declares the parked queue for routingKey and binds it. Parked
// messages are kept on disk since they may sit unread for a long time.
func DeclareDLQ(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	if err := DeclareDLQExchange(ch); err != nil {
		return amqp091.Queue{}, fmt.Errorf("declare dlq exchange: %w", err)
	}
	q, err := ch.QueueDeclare(DLQQueueName(routingKey), true, false, false, false, amqp091.Table{
		"x-queue-mode": "lazy",
	})
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("declare dlq %s: %w", DLQQueueName(routingKey), err)
	}
	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("bind dlq %s: %w", q.Name, err)
	}
	return q, nil
}

// PublishToDLQ parks a message, keeping the cause and attempt count in headers.
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string, attempts int64) error {
	headers := amqp091.Table{
		HeaderOriginalError: originalError,
		HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339),
		HeaderAttempts:      attempts,
		HeaderSourceKey:     routingKey,
	}
	return p.publishRaw(ctx, DLQExchangeName, routingKey, payload, headers)
}
