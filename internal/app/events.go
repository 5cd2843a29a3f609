package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/autosales/internal/messaging/nats"
	"github.com/vladislavdragonenkov/autosales/internal/service/payment"
)

// events отвечает за публикацию событий outbox и приём callback-ов из брокера.
type events struct {
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	consumer  *kafka.Consumer
	closers   []func() error
}

// callbackApplier применяет callback провайдера к продаже.
type callbackApplier interface {
	Handle(ctx context.Context, req payment.CallbackRequest) (payment.CallbackResult, error)
}

func initEvents(cfg Config, callbacks callbackApplier, logger *log.Entry) (*events, error) {
	ev := &events{}

	switch cfg.EventBroker {
	case EventBrokerKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger.WithField("component", "kafka-producer"))
		if err != nil {
			return nil, err
		}
		ev.closers = append(ev.closers, producer.Close)
		ev.publisher = kafka.NewOutboxPublisher(producer, cfg.eventsTopic())
		ev.dlq = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)

		consumer, err := kafka.NewConsumerWithOptions(
			cfg.KafkaBrokers,
			cfg.KafkaConsumerGroup,
			[]string{cfg.callbacksTopic()},
			kafka.PaymentCallbackHandler(applyCallback(callbacks)),
			kafka.ConsumerOptions{
				DLQProducer: producer,
				MaxRetries:  3,
				Logger:      logger.WithField("component", "kafka-consumer"),
			},
		)
		if err != nil {
			_ = ev.close()
			return nil, err
		}
		ev.consumer = consumer
		logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka events enabled")
	case EventBrokerNATS:
		publisher, err := nats.Connect(nats.Config{URL: cfg.NATSURL}, logger.WithField("component", "nats-publisher"))
		if err != nil {
			return nil, err
		}
		ev.closers = append(ev.closers, func() error { publisher.Close(); return nil })
		ev.publisher = publisher
		logger.WithField("url", cfg.NATSURL).Info("nats events enabled")
	case EventBrokerNone:
		logger.Info("event broker disabled, outbox events stay pending")
	default:
		return nil, fmt.Errorf("unsupported event broker %q", cfg.EventBroker)
	}

	return ev, nil
}

func applyCallback(callbacks callbackApplier) func(context.Context, kafka.PaymentCallbackEvent) error {
	return func(ctx context.Context, event kafka.PaymentCallbackEvent) error {
		_, err := callbacks.Handle(ctx, payment.CallbackRequest{
			SaleID:            event.SaleID,
			PaymentStatus:     domain.PaymentStatus(event.PaymentStatus),
			ProviderReference: event.ProviderReference,
		})
		return err
	}
}

func (e *events) close() error {
	var firstErr error
	if e.consumer != nil {
		if err := e.consumer.Stop(); err != nil {
			firstErr = err
		}
		e.consumer = nil
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.closers = nil
	return firstErr
}
