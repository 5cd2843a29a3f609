package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type saleRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Sale
}

// NewSaleRepository возвращает in-memory хранилище продаж.
func NewSaleRepository() domain.SaleRepository {
	return &saleRepositoryInMemory{items: make(map[string]domain.Sale)}
}

func (r *saleRepositoryInMemory) Put(_ context.Context, sale domain.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[sale.ID] = sale
	return nil
}

func (r *saleRepositoryInMemory) Get(_ context.Context, id string) (domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.items[id]
	if !ok {
		return domain.Sale{}, fmt.Errorf("sale %s: %w", id, domain.ErrNotFound)
	}
	return sale, nil
}

func (r *saleRepositoryInMemory) UpdatePayment(_ context.Context, id string, payment domain.SalePayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sale, ok := r.items[id]
	if !ok {
		return fmt.Errorf("sale %s: %w", id, domain.ErrNotFound)
	}

	sale.PaymentStatus = payment.PaymentStatus
	sale.Status = payment.Status
	if payment.ProviderReference != "" {
		sale.ProviderReference = payment.ProviderReference
	}
	if payment.PaidAt != nil {
		paidAt := *payment.PaidAt
		sale.PaidAt = &paidAt
	}
	sale.UpdatedAt = payment.UpdatedAt
	r.items[id] = sale
	return nil
}

func (r *saleRepositoryInMemory) Complete(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sale, ok := r.items[id]
	if !ok {
		return fmt.Errorf("sale %s: %w", id, domain.ErrNotFound)
	}

	sale.Status = domain.SaleStatusCompleted
	sale.CompletedAt = &at
	sale.UpdatedAt = at
	r.items[id] = sale
	return nil
}

func (r *saleRepositoryInMemory) Cancel(_ context.Context, id, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sale, ok := r.items[id]
	if !ok {
		sale = domain.Sale{ID: id, CreatedAt: at}
	}

	sale.Status = domain.SaleStatusCancelled
	sale.CancelReason = reason
	sale.UpdatedAt = at
	r.items[id] = sale
	return nil
}

var _ domain.SaleRepository = (*saleRepositoryInMemory)(nil)
