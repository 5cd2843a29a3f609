package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type executionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Execution
}

// NewExecutionRepository возвращает in-memory журнал запусков саги.
func NewExecutionRepository() domain.ExecutionRepository {
	return &executionRepositoryInMemory{items: make(map[string]domain.Execution)}
}

func (r *executionRepositoryInMemory) Save(_ context.Context, execution domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[execution.Handle] = execution
	return nil
}

func (r *executionRepositoryInMemory) Get(_ context.Context, handle string) (domain.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.items[handle]
	if !ok {
		return domain.Execution{}, fmt.Errorf("execution %s: %w", handle, domain.ErrNotFound)
	}
	return execution, nil
}

var _ domain.ExecutionRepository = (*executionRepositoryInMemory)(nil)
