package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// ErrPermanent помечает ошибку, которую повтор не исправит: сообщение сразу уходит в DLQ.
var ErrPermanent = errors.New("permanent message failure")

// Permanent оборачивает err в ErrPermanent.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// MessageHandler обрабатывает сообщение из Kafka
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerOptions задаёт параметры повторов и DLQ.
type ConsumerOptions struct {
	DLQProducer *Producer
	MaxRetries  int
	RetryDelay  time.Duration
	Logger      *log.Entry
}

// Consumer читает топики через consumer group и отправляет
// необработанные сообщения в DLQ.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	maxRetries  int
	retryDelay  time.Duration
}

// NewConsumer создаёт consumer group с настройками по умолчанию и без DLQ.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithOptions(brokers, groupID, topics, handler, ConsumerOptions{MaxRetries: 3})
}

// NewConsumerWithOptions создаёт consumer group с DLQ и повторами.
func NewConsumerWithOptions(brokers []string, groupID string, topics []string, handler MessageHandler, opts ConsumerOptions) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}

	return &Consumer{
		consumer:    group,
		topics:      topics,
		handler:     handler,
		logger:      logger,
		dlqProducer: opts.DLQProducer,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
	}, nil
}

// Start запускает чтение в фоне до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает consumer group и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения партиции. Offset фиксируется после
// успешной обработки или отправки в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			fields := log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}
			c.logger.WithFields(fields).Debug("received message")

			if err := c.handleMessageWithRetry(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(fields).Error("message processing failed after all retries")
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessageWithRetry повторяет обработку, начиная со счётчика из заголовка
// x-retry-count, пока не исчерпан maxRetries. После этого сообщение уходит в DLQ.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	retryCount := c.getRetryCount(message)

	var err error
	for attempt := retryCount; ; attempt++ {
		err = c.handler(ctx, message)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) || attempt+1 >= c.maxRetries {
			retryCount = attempt
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": attempt,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, will retry")

		if c.retryDelay > 0 {
			timer := time.NewTimer(c.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if c.dlqProducer == nil {
		return err
	}
	if dlqErr := c.sendToDLQ(message, err, retryCount); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": retryCount,
	}).Info("message sent to DLQ")
	return nil
}

func (c *Consumer) getRetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) == HeaderRetryCount {
			count, err := strconv.Atoi(string(header.Value))
			if err == nil {
				return count
			}
		}
	}
	return 0
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error, retryCount int) error {
	return c.dlqProducer.PublishEvent(TopicDeadLetterQueue, string(message.Key), DLQMessage{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      processingErr.Error(),
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		RetryCount:        retryCount,
	})
}

// PaymentCallbackHandler превращает функцию применения callback в MessageHandler.
// Нечитаемое сообщение, неверный статус и неизвестная продажа не повторяются.
func PaymentCallbackHandler(apply func(context.Context, PaymentCallbackEvent) error) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParsePaymentCallback(message)
		if err != nil {
			return Permanent(err)
		}
		if strings.TrimSpace(event.SaleID) == "" {
			event.SaleID = string(message.Key)
		}

		if err := apply(ctx, event); err != nil {
			if domain.IsInvalidInput(err) || domain.IsNotFound(err) {
				return Permanent(err)
			}
			return err
		}
		return nil
	}
}
