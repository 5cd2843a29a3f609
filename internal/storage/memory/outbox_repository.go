package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	seq        uint64
	updatedAt  time.Time
}

// OutboxRepository — in-memory transactional outbox.
type OutboxRepository struct {
	mu      sync.RWMutex
	seq     uint64
	records map[string]*outboxRecord
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{records: make(map[string]*outboxRecord)}
}

// Enqueue сохраняет событие со статусом pending.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	r.seq++
	r.records[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    domain.OutboxStatusPending,
		seq:       r.seq,
		updatedAt: msg.CreatedAt,
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом pending в порядке постановки.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := r.pendingRecords()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	pending := r.pendingRecords()

	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].msg.CreatedAt
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.markStatus(id, domain.OutboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.markStatus(id, domain.OutboxStatusFailed)
}

// DeleteProcessedBefore удаляет старые отправленные и проваленные сообщения.
func (r *OutboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]*outboxRecord, 0)
	for _, rec := range r.records {
		if rec.status != domain.OutboxStatusPending && !rec.updatedAt.After(before) {
			candidates = append(candidates, rec)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].updatedAt.Before(candidates[j].updatedAt) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, rec := range candidates {
		delete(r.records, rec.msg.ID)
	}
	return len(candidates), nil
}

// Messages возвращает копию всех сообщений в порядке постановки (используется в тестах).
func (r *OutboxRepository) Messages() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*outboxRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	result := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.msg)
	}
	return result
}

func (r *OutboxRepository) markStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	return nil
}

func (r *OutboxRepository) pendingRecords() []*outboxRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make([]*outboxRecord, 0)
	for _, rec := range r.records {
		if rec.status == domain.OutboxStatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
