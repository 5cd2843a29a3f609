package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/autosales/internal/messaging"
)

// Топики сервиса продаж.
const (
	TopicSaleEvents       = "autosales.sale.events"
	TopicPaymentCallbacks = "autosales.payment.callbacks"
	TopicDeadLetterQueue  = "autosales.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// PaymentCallbackEvent — уведомление платёжного провайдера из топика callbacks.
type PaymentCallbackEvent struct {
	SaleID            string `json:"saleId"`
	PaymentStatus     string `json:"paymentStatus"`
	ProviderReference string `json:"providerReference,omitempty"`
}

// DLQMessage — сообщение, которое consumer не смог обработать.
type DLQMessage struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// ParseOutboxEnvelope разбирает событие продажи.
func ParseOutboxEnvelope(message *sarama.ConsumerMessage) (messaging.Envelope, error) {
	var envelope messaging.Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return messaging.Envelope{}, fmt.Errorf("failed to unmarshal outbox envelope: %w", err)
	}
	return envelope, nil
}

// ParsePaymentCallback разбирает уведомление провайдера.
func ParsePaymentCallback(message *sarama.ConsumerMessage) (PaymentCallbackEvent, error) {
	var event PaymentCallbackEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return PaymentCallbackEvent{}, fmt.Errorf("failed to unmarshal payment callback: %w", err)
	}
	return event, nil
}
