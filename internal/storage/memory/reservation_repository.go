package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type reservationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Reservation
}

// NewReservationRepository возвращает in-memory хранилище резервов.
func NewReservationRepository() domain.ReservationRepository {
	return &reservationRepositoryInMemory{items: make(map[string]domain.Reservation)}
}

func (r *reservationRepositoryInMemory) Create(_ context.Context, reservation domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[reservation.ID]; exists {
		return fmt.Errorf("reservation %s: %w", reservation.ID, domain.ErrAlreadyExists)
	}
	r.items[reservation.ID] = reservation
	return nil
}

func (r *reservationRepositoryInMemory) Get(_ context.Context, id string) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reservation, ok := r.items[id]
	if !ok {
		return domain.Reservation{}, fmt.Errorf("reservation %s: %w", id, domain.ErrNotFound)
	}
	return reservation, nil
}

func (r *reservationRepositoryInMemory) AwaitPayment(_ context.Context, id, paymentCode string, at time.Time) error {
	return r.transition(id, domain.ReservationStatusAwaitingPayment, func(res *domain.Reservation) {
		res.PaymentCode = paymentCode
		res.UpdatedAt = at
	})
}

func (r *reservationRepositoryInMemory) Confirm(_ context.Context, id string, at time.Time) error {
	return r.transition(id, domain.ReservationStatusConfirmed, func(res *domain.Reservation) {
		res.ConfirmedAt = &at
		res.UpdatedAt = at
	})
}

func (r *reservationRepositoryInMemory) Cancel(_ context.Context, id, reason string, at time.Time) error {
	return r.transition(id, domain.ReservationStatusCancelled, func(res *domain.Reservation) {
		res.CancelledAt = &at
		res.CancelReason = reason
		res.UpdatedAt = at
	})
}

// transition применяет mutate только если текущий статус входит в допустимые источники target.
func (r *reservationRepositoryInMemory) transition(id string, target domain.ReservationStatus, mutate func(*domain.Reservation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reservation, ok := r.items[id]
	if !ok || !reservation.Status.CanTransitionTo(target) {
		return fmt.Errorf("reservation %s cannot move to %s: %w", id, target, domain.ErrPreconditionFailed)
	}

	reservation.Status = target
	mutate(&reservation)
	r.items[id] = reservation
	return nil
}

var _ domain.ReservationRepository = (*reservationRepositoryInMemory)(nil)
