package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/messaging"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	publishedAt := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope messaging.Envelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.AggregateID != "s1" || envelope.EventType != "SaleCompleted" {
			return fmt.Errorf("unexpected envelope: %+v", envelope)
		}
		if !envelope.PublishedAt.Equal(publishedAt) || string(envelope.Payload) != `{"sale_id":"s1"}` {
			return fmt.Errorf("unexpected envelope body: %+v", envelope)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, log.WithField("component", "kafka-outbox-publisher-test")), "")
	publisher.now = func() time.Time { return publishedAt }

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "sale",
		AggregateID:   "s1",
		EventType:     "SaleCompleted",
		Payload:       []byte(`{"sale_id":"s1"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if publisher.topic != TopicSaleEvents {
		t.Fatalf("expected default topic, got %s", publisher.topic)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicDeadLetterQueue)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:          "outbox-2",
		AggregateID: "s2",
		EventType:   "SaleCancelled",
		Payload:     []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	publisher := NewOutboxPublisher(NewProducerFromSync(mocks.NewSyncProducer(t, nil), nil), "")
	if err := publisher.Publish(ctx, domain.OutboxMessage{ID: "outbox-3", Payload: []byte(`{}`)}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicSaleEvents)
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
