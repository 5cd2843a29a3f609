package saga

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type completeSale struct {
	sealedStep
	deps Dependencies
}

// NewCompleteSale создаёт шаг завершения продажи.
// Порядок записей: автомобиль (условно), продажа, резерв (условно).
func NewCompleteSale(deps Dependencies) Step {
	return &completeSale{deps: deps.withDefaults()}
}

func (s *completeSale) Name() StepName { return StepCompleteSale }

func (s *completeSale) Execute(ctx context.Context, in Input) (Delta, error) {
	clientID := in.CustomerID()
	switch {
	case clientID == "":
		return Delta{}, domain.ErrClientIDRequired
	case in.ReservationID == "":
		return Delta{}, domain.ErrReservationIDRequired
	case in.SaleID == "":
		return Delta{}, domain.ErrSaleIDRequired
	case in.VehicleID == "":
		return Delta{}, domain.ErrVehicleIDRequired
	}

	now := s.deps.Now()

	if err := s.deps.Vehicles.MarkSold(ctx, in.VehicleID, in.SaleID, clientID, now); err != nil {
		return Delta{}, err
	}
	if err := s.deps.Sales.Complete(ctx, in.SaleID, now); err != nil {
		return Delta{}, fmt.Errorf("complete sale record: %w", err)
	}
	if err := s.deps.Reservations.Confirm(ctx, in.ReservationID, now); err != nil {
		return Delta{}, err
	}

	return Delta{
		ClientID:          clientID,
		ReservationStatus: domain.ReservationStatusConfirmed,
		Status:            domain.SaleStatusCompleted,
	}, nil
}
