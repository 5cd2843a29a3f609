package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type clientRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Client
}

// NewClientRepository возвращает in-memory хранилище клиентов.
func NewClientRepository() domain.ClientRepository {
	return &clientRepositoryInMemory{items: make(map[string]domain.Client)}
}

func (r *clientRepositoryInMemory) Create(_ context.Context, client domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[client.ID]; exists {
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrAlreadyExists)
	}
	r.items[client.ID] = client
	return nil
}

func (r *clientRepositoryInMemory) Get(_ context.Context, id string) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.items[id]
	if !ok {
		return domain.Client{}, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
	}
	return client, nil
}

var _ domain.ClientRepository = (*clientRepositoryInMemory)(nil)
