// Package messaging содержит общий формат событий продаж для брокеров.
package messaging

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// Envelope описывает событие продажи, опубликованное из outbox.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// EnvelopeFor упаковывает запись outbox.
func EnvelopeFor(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt,
	}
}

// Key возвращает ключ партиционирования: saleId, а без него ID события.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}
