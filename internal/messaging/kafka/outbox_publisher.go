package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/messaging"
)

// OutboxTopicPublisher публикует события продаж из outbox в Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер; пустой topic означает TopicSaleEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicSaleEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish отправляет событие с ключом saleId, чтобы события одной продажи
// попадали в одну партицию.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope := messaging.EnvelopeFor(event, p.now())
	return p.producer.PublishEvent(p.topic, envelope.Key(), envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
