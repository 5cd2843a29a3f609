package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/messaging"
	"github.com/vladislavdragonenkov/autosales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/autosales/internal/service/outbox"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// replayMessage будет отправлено обратно в рабочий топик.
type replayMessage struct {
	topic string
	key   string
	value []byte
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer сканирует DLQ по партициям и переотправляет пригодные сообщения.
type replayer struct {
	cfg      config
	client   offsetClient
	source   partitionSource
	producer replayProducer
	logger   *log.Entry
	now      func() time.Time
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.client == nil || r.source == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if r.cfg.execute && r.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := r.cfg.limit - total.processed
		if remaining <= 0 {
			break
		}
		stats, err := r.partition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *replayer) partition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.processed++
			if err := r.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	replay, ok, err := extractReplayMessage(msg.Value, r.cfg.targetTopic, r.now())
	switch {
	case err != nil:
		stats.skipped++
		entry.WithError(err).Warn("skip malformed dlq message")
		return nil
	case !ok:
		stats.skipped++
		return nil
	}

	if !r.cfg.execute {
		stats.replayed++
		entry.WithFields(log.Fields{"target_topic": replay.topic, "key": replay.key}).Info("dlq replay candidate")
		return nil
	}

	_, _, err = r.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     replay.topic,
		Key:       sarama.StringEncoder(replay.key),
		Value:     sarama.ByteEncoder(replay.value),
		Timestamp: r.now(),
	})
	if err != nil {
		return fmt.Errorf("replay to %s: %w", replay.topic, err)
	}
	stats.replayed++
	return nil
}

// extractReplayMessage распознаёт два формата DLQ: сообщение consumer-а
// (kafka.DLQMessage) и событие outbox, не доставленное воркером (outbox.DeadLetter
// внутри конверта). Остальное пропускается без ошибки.
func extractReplayMessage(value []byte, defaultTopic string, now time.Time) (replayMessage, bool, error) {
	var consumed kafka.DLQMessage
	if err := json.Unmarshal(value, &consumed); err == nil && consumed.OriginalValue != "" {
		topic := strings.TrimSpace(consumed.OriginalTopic)
		if topic == "" {
			topic = defaultTopic
		}
		return replayMessage{topic: topic, key: consumed.OriginalKey, value: []byte(consumed.OriginalValue)}, true, nil
	}

	var envelope messaging.Envelope
	if err := json.Unmarshal(value, &envelope); err != nil || len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return replayMessage{}, false, nil
	}

	var dead outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if original := bytes.TrimSpace(dead.Payload); len(original) == 0 || bytes.Equal(original, []byte("null")) {
		return replayMessage{}, false, fmt.Errorf("dead letter %s has no original payload", envelope.ID)
	}

	restored := messaging.EnvelopeFor(domain.OutboxMessage{
		ID:            firstNonEmpty(dead.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(dead.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(dead.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(dead.EventType, envelope.EventType),
		Payload:       dead.Payload,
	}, now)
	encoded, err := json.Marshal(restored)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}
	return replayMessage{topic: defaultTopic, key: restored.Key(), value: encoded}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
