// Package outbox доставляет события саги из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Metrics собирает метрики доставки outbox.
type Metrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
	cleanupRuns      *prometheus.CounterVec
	cleanupDeleted   prometheus.Counter
}

// NewMetrics регистрирует метрики outbox в reg. Повторная регистрация
// возвращает уже существующие коллекторы.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		publishAttempts: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosales_outbox_publish_attempts_total",
			Help: "Outbox publish attempts grouped by result.",
		}, []string{"result"})),
		pendingRecords: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autosales_outbox_pending_records",
			Help: "Pending records in transactional outbox.",
		})),
		oldestPendingAge: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autosales_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record.",
		})),
		cleanupRuns: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosales_outbox_cleanup_runs_total",
			Help: "Outbox retention cleanup runs grouped by result.",
		}, []string{"result"})),
		cleanupDeleted: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autosales_outbox_cleanup_deleted_total",
			Help: "Processed outbox records removed by retention cleanup.",
		})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) attempt(result string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) backlog(stats domain.OutboxStats, now time.Time) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		m.oldestPendingAge.Set(0)
		return
	}
	m.oldestPendingAge.Set(max(now.Sub(stats.OldestPendingAt).Seconds(), 0))
}

// WorkerOptions задаёт параметры воркера.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *Metrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(opts *WorkerOptions) { opts.Metrics = m }
}

// WithDLQPublisher задаёт получателя событий, которые не удалось опубликовать.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

func WithBatchSize(size int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = size }
}

func WithMaxAttempts(attempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = attempts }
}

// WithRetryBaseDelay задаёт первую задержку; каждая следующая вдвое больше.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

// Worker периодически забирает pending-события и публикует их.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      WorkerOptions
	logger    *log.Entry
	now       func() time.Time
}

// NewWorker создаёт воркер outbox.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "outbox-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		logger:    opts.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: repository or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce публикует одну пачку и возвращает число доставленных событий.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	w.refreshBacklog(ctx)

	events, err := w.repo.PullPending(ctx, w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		entry := w.logger.WithFields(log.Fields{
			"outbox_id":  event.ID,
			"sale_id":    event.AggregateID,
			"event_type": event.EventType,
		})

		if err := w.publishWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				// Событие останется pending и уйдёт в следующем запуске.
				break
			}
			entry.WithError(err).Error("outbox publish failed after retries")
			w.opts.Metrics.attempt("failed")

			if dlqErr := w.publishToDLQ(ctx, event, err); dlqErr != nil {
				entry.WithError(dlqErr).Warn("publish to dlq")
				w.opts.Metrics.attempt("dlq_failed")
			}
			if markErr := w.repo.MarkFailed(ctx, event.ID); markErr != nil {
				entry.WithError(markErr).Warn("mark outbox message failed")
			}
			continue
		}

		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			entry.WithError(err).Warn("mark outbox message sent")
			continue
		}
		sent++
	}

	if len(events) > 0 {
		w.refreshBacklog(ctx)
	}
	return sent
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		lastErr = w.publisher.Publish(ctx, event)
		if lastErr == nil {
			w.opts.Metrics.attempt("sent")
			return nil
		}
		w.opts.Metrics.attempt("retry_error")

		if attempt == w.opts.MaxAttempts {
			break
		}
		delay := w.backoff(attempt)
		if delay == 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.opts.MaxAttempts, lastErr)
}

func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.opts.RetryBaseDelay
	for i := 1; i < attempt && delay > 0; i++ {
		if delay > time.Duration(1<<62) {
			return delay
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("collect outbox backlog stats")
		return
	}
	w.opts.Metrics.backlog(stats, w.now())
}

// DeadLetter — содержимое события, которое воркер отправил в DLQ.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func (w *Worker) publishToDLQ(ctx context.Context, event domain.OutboxMessage, publishErr error) error {
	if w.opts.DLQPublisher == nil {
		return nil
	}

	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}
	body, err := json.Marshal(DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        payload,
		PublishError:   publishErr.Error(),
		DLQPublishedAt: w.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dlqEvent := event
	dlqEvent.Payload = body
	if err := w.opts.DLQPublisher.Publish(ctx, dlqEvent); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
