package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

const (
	defaultKeyPrefix    = "autosales:execution:"
	defaultExecutionTTL = 24 * time.Hour
)

// Client — минимальная поверхность go-redis, нужная хранилищу запусков.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// ExecutionRepository хранит состояние запусков саги в Redis.
// Каждый запуск лежит JSON-документом под ключом prefix+handle и живёт ttl.
type ExecutionRepository struct {
	client    Client
	keyPrefix string
	ttl       time.Duration
}

// NewExecutionRepository создаёт Redis-хранилище запусков. ttl<=0 заменяется на сутки.
func NewExecutionRepository(client Client, ttl time.Duration) *ExecutionRepository {
	if ttl <= 0 {
		ttl = defaultExecutionTTL
	}
	return &ExecutionRepository{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       ttl,
	}
}

// Save перезаписывает состояние запуска и продлевает TTL.
func (r *ExecutionRepository) Save(ctx context.Context, execution domain.Execution) error {
	if execution.Handle == "" {
		return fmt.Errorf("execution handle is required: %w", domain.ErrInvalidInput)
	}

	payload, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	if err := r.client.Set(ctx, r.keyPrefix+execution.Handle, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("save execution %s: %w", execution.Handle, err)
	}
	return nil
}

// Get возвращает состояние запуска по handle.
func (r *ExecutionRepository) Get(ctx context.Context, handle string) (domain.Execution, error) {
	raw, err := r.client.Get(ctx, r.keyPrefix+handle).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Execution{}, fmt.Errorf("execution %s: %w", handle, domain.ErrNotFound)
		}
		return domain.Execution{}, fmt.Errorf("load execution %s: %w", handle, err)
	}

	var execution domain.Execution
	if err := json.Unmarshal(raw, &execution); err != nil {
		return domain.Execution{}, fmt.Errorf("decode execution %s: %w", handle, err)
	}
	return execution, nil
}

var _ domain.ExecutionRepository = (*ExecutionRepository)(nil)
