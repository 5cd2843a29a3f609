package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// vehicleRepositoryInMemory — in-memory каталог. Каждая операция берёт
// эксклюзивную блокировку, поэтому проверка условия и запись атомарны.
type vehicleRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Vehicle
}

// NewVehicleRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewVehicleRepository() domain.VehicleRepository {
	return &vehicleRepositoryInMemory{items: make(map[string]domain.Vehicle)}
}

func (r *vehicleRepositoryInMemory) Create(_ context.Context, vehicle domain.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[vehicle.ID]; exists {
		return fmt.Errorf("vehicle %s: %w", vehicle.ID, domain.ErrAlreadyExists)
	}
	r.items[vehicle.ID] = vehicle
	return nil
}

func (r *vehicleRepositoryInMemory) Get(_ context.Context, id string) (domain.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vehicle, ok := r.items[id]
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, domain.ErrNotFound)
	}
	return vehicle, nil
}

func (r *vehicleRepositoryInMemory) Reserve(_ context.Context, id string, reservation domain.VehicleReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	vehicle, ok := r.items[id]
	if !ok || vehicle.Status != domain.VehicleStatusAvailable {
		return fmt.Errorf("vehicle %s is not available: %w", id, domain.ErrPreconditionFailed)
	}

	reservedAt := reservation.ReservedAt
	vehicle.Status = domain.VehicleStatusReserved
	vehicle.SaleID = reservation.SaleID
	vehicle.ClientID = reservation.ClientID
	vehicle.ReservationID = reservation.ReservationID
	vehicle.ReservedAt = &reservedAt
	vehicle.UpdatedAt = reservedAt
	r.items[id] = vehicle
	return nil
}

func (r *vehicleRepositoryInMemory) MarkSold(_ context.Context, id, saleID, clientID string, soldAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	vehicle, ok := r.items[id]
	if !ok || vehicle.Status != domain.VehicleStatusReserved || vehicle.SaleID != saleID {
		return fmt.Errorf("vehicle %s is not reserved by sale %s: %w", id, saleID, domain.ErrPreconditionFailed)
	}

	vehicle.Status = domain.VehicleStatusSold
	vehicle.ClientID = clientID
	vehicle.SoldAt = &soldAt
	vehicle.UpdatedAt = soldAt
	r.items[id] = vehicle
	return nil
}

func (r *vehicleRepositoryInMemory) Release(_ context.Context, id, saleID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	vehicle, ok := r.items[id]
	if !ok || vehicle.Status != domain.VehicleStatusReserved || vehicle.SaleID != saleID {
		return fmt.Errorf("vehicle %s is not reserved by sale %s: %w", id, saleID, domain.ErrPreconditionFailed)
	}

	vehicle.Status = domain.VehicleStatusAvailable
	vehicle.SaleID = ""
	vehicle.ClientID = ""
	vehicle.ReservationID = ""
	vehicle.ReservedAt = nil
	vehicle.UpdatedAt = at
	r.items[id] = vehicle
	return nil
}

func (r *vehicleRepositoryInMemory) UpdateDetails(_ context.Context, id string, details domain.VehicleDetails, at time.Time) (domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	vehicle, ok := r.items[id]
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, domain.ErrNotFound)
	}
	if vehicle.Status == domain.VehicleStatusSold {
		return domain.Vehicle{}, fmt.Errorf("vehicle %s is sold: %w", id, domain.ErrInvalidState)
	}

	details.Apply(&vehicle)
	vehicle.UpdatedAt = at
	r.items[id] = vehicle
	return vehicle, nil
}

func (r *vehicleRepositoryInMemory) ListByStatus(_ context.Context, status domain.VehicleStatus) ([]domain.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Vehicle, 0)
	for _, vehicle := range r.items {
		if vehicle.Status == status {
			result = append(result, vehicle)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Price != result[j].Price {
			return result[i].Price < result[j].Price
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

var _ domain.VehicleRepository = (*vehicleRepositoryInMemory)(nil)
