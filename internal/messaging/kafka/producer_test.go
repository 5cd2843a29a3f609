package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/messaging"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event PaymentCallbackEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.SaleID != "s1" {
			return fmt.Errorf("unexpected saleId %q", event.SaleID)
		}
		return nil
	})

	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test"))
	err := producer.PublishEvent(TopicPaymentCallbacks, "s1", PaymentCallbackEvent{SaleID: "s1", PaymentStatus: "PAID"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducerFromSync(mockProducer, nil)
	if err := producer.PublishEvent(TopicSaleEvents, "s1", messaging.Envelope{ID: "e1", Payload: json.RawMessage(`{}`)}); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	producer := NewProducerFromSync(mocks.NewSyncProducer(t, nil), nil)
	if err := producer.PublishEvent(TopicSaleEvents, "s1", map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestNewProducerConfigIsIdempotent(t *testing.T) {
	cfg := NewProducerConfig()
	if !cfg.Producer.Idempotent || cfg.Net.MaxOpenRequests != 1 {
		t.Fatalf("idempotent producer requires a single in-flight request: %+v", cfg.Producer)
	}
	if cfg.Producer.RequiredAcks != sarama.WaitForAll || !cfg.Producer.Return.Successes {
		t.Fatal("sync producer must wait for all replicas and return successes")
	}
}

func TestParseOutboxEnvelope(t *testing.T) {
	envelope, err := ParseOutboxEnvelope(&sarama.ConsumerMessage{
		Value: []byte(`{"id":"e1","aggregate_type":"sale","aggregate_id":"s1","event_type":"SaleCompleted","payload":{"sale_id":"s1"}}`),
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if envelope.AggregateID != "s1" || envelope.EventType != "SaleCompleted" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if _, err := ParseOutboxEnvelope(&sarama.ConsumerMessage{Value: []byte("{")}); err == nil {
		t.Fatal("expected parse error")
	}
}
