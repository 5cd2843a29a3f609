package saga

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type generatePaymentCode struct {
	sealedStep
	deps Dependencies
}

// NewGeneratePaymentCode создаёт шаг выставления платёжного кода.
func NewGeneratePaymentCode(deps Dependencies) Step {
	return &generatePaymentCode{deps: deps.withDefaults()}
}

func (s *generatePaymentCode) Name() StepName { return StepGeneratePaymentCode }

func (s *generatePaymentCode) Execute(ctx context.Context, in Input) (Delta, error) {
	switch {
	case in.SaleID == "":
		return Delta{}, domain.ErrSaleIDRequired
	case in.VehicleID == "":
		return Delta{}, domain.ErrVehicleIDRequired
	case in.ReservationID == "":
		return Delta{}, domain.ErrReservationIDRequired
	}

	vehicle, err := s.deps.Vehicles.Get(ctx, in.VehicleID)
	if err != nil {
		return Delta{}, err
	}

	now := s.deps.Now()
	code := domain.PaymentCodeFor(in.SaleID)

	sale := domain.Sale{
		ID:            in.SaleID,
		ReservationID: in.ReservationID,
		VehicleID:     in.VehicleID,
		ClientID:      in.CustomerID(),
		PaymentCode:   code,
		PaymentStatus: domain.PaymentStatusPending,
		Status:        domain.SaleStatusReserved,
		TotalPrice:    vehicle.Price,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deps.Sales.Put(ctx, sale); err != nil {
		return Delta{}, fmt.Errorf("store sale: %w", err)
	}

	if err := s.deps.Reservations.AwaitPayment(ctx, in.ReservationID, code, now); err != nil {
		return Delta{}, err
	}

	return Delta{
		PaymentCode:       code,
		PaymentStatus:     domain.PaymentStatusPending,
		ReservationStatus: domain.ReservationStatusAwaitingPayment,
		TotalPrice:        vehicle.Price,
	}, nil
}
