package outbox

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetention        = 72 * time.Hour
)

// CleanupOptions задаёт параметры очистки обработанных записей outbox.
type CleanupOptions struct {
	Logger    *log.Entry
	Metrics   *Metrics
	Interval  time.Duration
	Retention time.Duration
	BatchSize int
}

// CleanupWorker периодически удаляет отправленные и проваленные записи
// старше Retention. Pending-записи не трогает.
type CleanupWorker struct {
	repo      domain.OutboxRepository
	logger    *log.Entry
	metrics   *Metrics
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time
}

func NewCleanupWorker(repo domain.OutboxRepository, opts CleanupOptions) *CleanupWorker {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-cleanup")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    logger,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		retention: opts.Retention,
		batchSize: opts.BatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run чистит outbox сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("outbox cleanup is disabled: repo is nil")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	deleted, err := w.DeleteProcessed(ctx, w.now().Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.metrics.cleanupRun("error", 0)
		w.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	w.metrics.cleanupRun("ok", deleted)
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// DeleteProcessed удаляет записи, обработанные до before, порциями batchSize.
func (w *CleanupWorker) DeleteProcessed(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteProcessedBefore(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted

		if deleted < w.batchSize {
			return total, nil
		}
	}
}

func (m *Metrics) cleanupRun(result string, deleted int) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	if deleted > 0 {
		m.cleanupDeleted.Add(float64(deleted))
	}
}
